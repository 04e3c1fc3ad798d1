package service

import "errors"

var (
	// ErrQuestionRequired indicates neither a question nor an instance question was supplied.
	ErrQuestionRequired = errors.New("question_id or instance_question_id is required")
	// ErrQuestionNotFound indicates the question cannot be located.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInstanceQuestionNotFound indicates the assessment slot cannot be located.
	ErrInstanceQuestionNotFound = errors.New("instance question not found")
	// ErrInstanceQuestionForbidden indicates the assessment slot belongs to another user.
	ErrInstanceQuestionForbidden = errors.New("instance question belongs to another user")
	// ErrSeedTooLong indicates a caller supplied seed exceeds the stored length.
	ErrSeedTooLong = errors.New("variant seed is too long")
	// ErrVariantNotFound indicates the variant cannot be located.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrCourseNotFound indicates the course cannot be located.
	ErrCourseNotFound = errors.New("course not found")
	// ErrGradingJobNotFound indicates the grading job cannot be located.
	ErrGradingJobNotFound = errors.New("grading job not found")
	// ErrGradingJobNotExternal indicates a result was posted for a job not graded externally.
	ErrGradingJobNotExternal = errors.New("grading job is not externally graded")
	// ErrGradingJobNotManual indicates a manual score was posted for a job not graded by staff.
	ErrGradingJobNotManual = errors.New("grading job is not manually graded")
	// ErrGradingJobCompleted indicates the job already carries a different result.
	ErrGradingJobCompleted = errors.New("grading job already completed")
	// ErrUnknownGradingMethod indicates a question carries an unsupported grading method.
	ErrUnknownGradingMethod = errors.New("unknown grading method")
)
