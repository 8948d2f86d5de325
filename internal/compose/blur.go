package compose

import (
	"image"
	"sync"
)

// rowBufPool recycles the intermediate image of the horizontal pass.
var rowBufPool = sync.Pool{
	New: func() interface{} { return make([]uint8, 0, 1024*1024) },
}

// colSumsPool recycles per-column accumulators of the vertical pass.
var colSumsPool = sync.Pool{
	New: func() interface{} { return make([]uint32, 0, 1024) },
}

// boxBlur blurs img in place with a separable box filter of the given
// radius. img must have a zero origin. Edges are clamped and the radius is
// capped at half the image size.
func boxBlur(img *image.RGBA, radius int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	radius = min(radius, w/2, h/2)
	if radius < 1 {
		return
	}

	need := w * h * 4
	bufPtr := rowBufPool.Get().([]uint8)
	if cap(bufPtr) < need {
		bufPtr = make([]uint8, need)
	}
	buf := bufPtr[:need]
	defer rowBufPool.Put(bufPtr)

	blurRows(img, buf, w, h, radius)
	blurCols(img, buf, w, h, radius)
}

// blurRows runs the horizontal pass from img into buf (tightly packed).
func blurRows(img *image.RGBA, buf []uint8, w, h, radius int) {
	pix, stride := img.Pix, img.Stride
	count := uint32(2*radius + 1)
	at := func(row, x int) int { return row + min(max(x, 0), w-1)*4 }

	for y := 0; y < h; y++ {
		row := y * stride
		var r, g, b uint32
		for k := -radius; k <= radius; k++ {
			off := at(row, k)
			r += uint32(pix[off])
			g += uint32(pix[off+1])
			b += uint32(pix[off+2])
		}

		out := y * w * 4
		for x := 0; x < w; x++ {
			o := out + x*4
			buf[o] = uint8(r / count)
			buf[o+1] = uint8(g / count)
			buf[o+2] = uint8(b / count)
			buf[o+3] = 255

			rem, add := at(row, x-radius), at(row, x+radius+1)
			r = r - uint32(pix[rem]) + uint32(pix[add])
			g = g - uint32(pix[rem+1]) + uint32(pix[add+1])
			b = b - uint32(pix[rem+2]) + uint32(pix[add+2])
		}
	}
}

// blurCols runs the vertical pass from buf back into img, row by row with a
// running sum per column for cache locality.
func blurCols(img *image.RGBA, buf []uint8, w, h, radius int) {
	pix, stride := img.Pix, img.Stride
	count := uint32(2*radius + 1)

	cols := w * 3
	csPtr := colSumsPool.Get().([]uint32)
	if cap(csPtr) < cols {
		csPtr = make([]uint32, cols)
	}
	sums := csPtr[:cols]
	clear(sums)
	defer colSumsPool.Put(csPtr)

	rowOf := func(y int) int { return min(max(y, 0), h-1) * w * 4 }
	for k := -radius; k <= radius; k++ {
		row := rowOf(k)
		for x := 0; x < w; x++ {
			off := row + x*4
			sums[x*3] += uint32(buf[off])
			sums[x*3+1] += uint32(buf[off+1])
			sums[x*3+2] += uint32(buf[off+2])
		}
	}

	for y := 0; y < h; y++ {
		dst := y * stride
		rem, add := rowOf(y-radius), rowOf(y+radius+1)
		for x := 0; x < w; x++ {
			o := dst + x*4
			pix[o] = uint8(sums[x*3] / count)
			pix[o+1] = uint8(sums[x*3+1] / count)
			pix[o+2] = uint8(sums[x*3+2] / count)
			pix[o+3] = 255

			ro, ao := rem+x*4, add+x*4
			sums[x*3] = sums[x*3] - uint32(buf[ro]) + uint32(buf[ao])
			sums[x*3+1] = sums[x*3+1] - uint32(buf[ro+1]) + uint32(buf[ao+1])
			sums[x*3+2] = sums[x*3+2] - uint32(buf[ro+2]) + uint32(buf[ao+2])
		}
	}
}
