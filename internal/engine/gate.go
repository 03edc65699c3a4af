package engine

// VetoActive reports whether the bar's volatility shock blocks all new
// entries. The check is portfolio-wide: the caller feeds the worst z-score
// seen across assets on the bar, and a breach halts new risk everywhere while
// open positions keep being managed.
func VetoActive(volZ, vetoThreshold float64) bool {
	return volZ > vetoThreshold
}

// PassesMacroFilter applies the configured regime condition to one asset's
// metrics. The chop variant pairs macro expansion with local compression so
// entries avoid a trend's exhaustion climax.
func PassesMacroFilter(filter MacroFilter, htf, ltf, htfThreshold, ltfThreshold float64) bool {
	switch filter {
	case FilterHurst:
		return htf >= htfThreshold
	case FilterChop:
		return htf < htfThreshold && ltf > ltfThreshold
	case FilterBoth:
		return htf >= htfThreshold && ltf > ltfThreshold
	}
	return false
}
