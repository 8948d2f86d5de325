package config

const (
	defaultSampleIntervalSingle = 5
	defaultSampleIntervalDual   = 1.0
	defaultTransitionSingle     = 4
	defaultTransitionDual       = 1.0
	defaultLossTimeout          = 3.0
	defaultSceneCutThreshold    = 18
	defaultWorkers              = 2
	defaultMatchDistancePx      = 200.0
	defaultWidth                = 1080
	defaultHeight               = 1920
	defaultDualZoomOut          = 2.2
	defaultBlurRadius           = 40
	defaultSocketPath           = "/tmp/reframe-detector.sock"
	defaultSocketTimeoutMS      = 500
	defaultWorkerTimeout        = 30
	defaultMinFaceSize          = 20
	defaultStoreDSN             = "~/.local/share/reframe/reframe.db"
	defaultLogFormat            = "auto"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Engine: Engine{
			SampleIntervalSingle:  defaultSampleIntervalSingle,
			SampleIntervalDual:    defaultSampleIntervalDual,
			Lookahead:             true,
			ConfidenceThreshold:   0.30,
			RelativeSizeThreshold: 0.35,
			CrowdThreshold:        7,
			Mode:                  "auto",
			DualAreaRatio:         0.60,
			DualHysteresis:        0.05,
			DeadZonePx:            40,
			LossTimeout:           defaultLossTimeout,
			TransitionSingle:      defaultTransitionSingle,
			TransitionDual:        defaultTransitionDual,
			Smoothing:             0.7,
			MARThreshold:          0.03,
			ScoreDiffThreshold:    1.5,
			DualSpeakerScore:      4.0,
			ActivityDecay:         0.5,
			ActivityAreaBoost:     0.05,
			MatchDistancePx:       defaultMatchDistancePx,
			MotionDeadZonePx:      3.0,
			MotionSensitivity:     0.05,
			MotionCap:             2.5,
			SceneCutThreshold:     defaultSceneCutThreshold,
			Workers:               defaultWorkers,
		},
		Compose: Compose{
			Width:       defaultWidth,
			Height:      defaultHeight,
			DualZoomOut: defaultDualZoomOut,
			Fallback:    "blur",
			BlurRadius:  defaultBlurRadius,
		},
		Detector: Detector{
			Order:           []string{"socket", "worker", "pigo"},
			SocketPath:      defaultSocketPath,
			SocketTimeoutMS: defaultSocketTimeoutMS,
			Python:          "python3",
			Script:          "python/detector.py",
			WorkerTimeout:   defaultWorkerTimeout,
			Cascade:         "cascade/facefinder",
			MinFaceSize:     defaultMinFaceSize,
		},
		Store: Store{
			Enabled: true,
			DSN:     defaultStoreDSN,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
