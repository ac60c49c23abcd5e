// Standard attribute keys for skflow log records.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples")
// so that runs can be filtered and aggregated by whatever collects the logs.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type, e.g. "Regression", "dummy.Classifier".
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values are the Operation* constants below.
	OperationKey = "ml.operation"

	// ComponentKey identifies the package doing the work, e.g. "model_selection".
	ComponentKey = "ml.component"

	// PhaseKey indicates the lifecycle phase, one of the Phase* constants.
	PhaseKey = "ml.phase"

	// RunIDKey carries the workflow run identifier.
	RunIDKey = "run.id"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ClassesKey  = "data.classes"

	// SourceKey is the path or table the dataset was loaded from.
	SourceKey = "data.source"
)

// Evaluation and search.
const (
	DurationMsKey = "perf.duration_ms"

	// MetricKey names the scorer, e.g. "accuracy" or "neg_mean_squared_error".
	MetricKey = "metrics.name"
	ScoreKey  = "metrics.score"
	MeanKey   = "metrics.mean"
	StdKey    = "metrics.std"

	AccuracyKey = "metrics.accuracy"
	R2ScoreKey  = "metrics.r2_score"

	FoldKey       = "cv.fold"
	NSplitsKey    = "cv.n_splits"
	CandidatesKey = "search.candidates"

	// HyperParamsKey holds a parameter map as a structured object.
	HyperParamsKey = "model.hyperparams"
	RandomSeedKey  = "config.random_seed"
)

// Error context.
const (
	ErrorTypeKey  = "error.type"
	SuggestionKey = "error.suggestion"
)

// Standard attribute values.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"
	OperationSplit        = "split"
	OperationLoad         = "load"
	OperationSearch       = "search"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhasePreprocessing = "preprocessing"
)
