package linear

// Option is a function that configures Regression
type Option func(*Regression)

// WithFitIntercept sets whether to calculate the intercept
func WithFitIntercept(fit bool) Option {
	return func(lr *Regression) {
		lr.fitIntercept = fit
	}
}

// WithAlpha sets the L2 penalty. 0 gives ordinary least squares.
func WithAlpha(alpha float64) Option {
	return func(lr *Regression) {
		lr.alpha = alpha
	}
}
