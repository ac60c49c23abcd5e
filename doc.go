// Package skflow is a small machine-learning workflow toolkit for Go: load a
// tabular dataset, split it, preprocess it, fit an estimator, and score it
// with cross-validation or a grid search.
//
// The API follows scikit-learn's estimator conventions. Every estimator
// exposes Fit, Predict and Score over gonum matrices, and hyperparameters are
// read and written with GetParams and SetParams.
//
// # Quick Start
//
//	ds, err := dataset.LoadCSV("wages.csv",
//	    dataset.WithTarget("WAGE"),
//	    dataset.WithCategorical("SEX"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	split, err := model_selection.TrainTestSplit(ds, model_selection.SplitConfig{TestSize: 0.25, Shuffle: true, Seed: 42})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	pipe := pipeline.New(linear.NewRegression(),
//	    pipeline.WithPreprocessor(preprocessing.NewColumnTransformer(
//	        preprocessing.WithNumericStep("scale", preprocessing.NewStandardScaler(), "EDUCATION"),
//	        preprocessing.WithCategoricalStep("onehot", preprocessing.NewOneHotEncoder(preprocessing.HandleUnknownIgnore), "SEX"),
//	    )),
//	)
//	res, err := model_selection.CrossValScore(pipe, split.Train, model_selection.NewKFold(5, true, 42), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Mean(), res.Std())
//
// The same run can be driven by a TOML file through the workflow package or
// the skflow command.
//
// # Packages
//
//   - dataset: typed tabular data, CSV/SQLite loaders and synthetic generators
//   - preprocessing: scalers, categorical encoders and ColumnTransformer
//   - linear: ordinary least squares, ridge and logistic regression
//   - dummy: baseline classifier and regressor
//   - cluster: k-means clustering
//   - metrics: classification, regression and clustering metrics, named scorers
//   - model_selection: splitting, k-fold, cross-validation and grid search
//   - pipeline: preprocessing plus estimator as one learner
//   - workflow: one configured end-to-end run with an optional run store
//   - core/model: estimator contracts and fitted-state handling
//   - core/parallel: row-parallel loops
//   - pkg/errors, pkg/log: structured errors and logging
package skflow
