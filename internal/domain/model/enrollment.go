package model

import "time"

type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// Enrollment is a free-course grant written by the signup service.
type Enrollment struct {
	ID                 string
	UserID             string
	CourseID           string
	Status             EnrollmentStatus
	EnrolledAt         time.Time
	ProgressPercentage int
}

func (e *Enrollment) IsActive() bool { return e != nil && e.Status == EnrollmentStatusActive }
