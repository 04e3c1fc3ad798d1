package models

// All lists every model managed by the engine in migration order.
func All() []interface{} {
	return []interface{}{
		&Course{},
		&Question{},
		&InstanceQuestion{},
		&Variant{},
		&Submission{},
		&GradingJob{},
		&CourseError{},
	}
}
