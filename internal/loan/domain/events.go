package domain

import "time"

const (
	EventLoanCreated  = "LoanCreated"
	EventLoanReturned = "LoanReturned"
)

type LoanCreated struct {
	LoanID     string    `json:"loan_id"`
	StudentID  string    `json:"student_id"`
	ResourceID int64     `json:"resource_id"`
	Quantity   int       `json:"quantity"`
	DueDate    time.Time `json:"due_date"`
}

type LoanReturned struct {
	LoanID     string    `json:"loan_id"`
	StudentID  string    `json:"student_id"`
	ResourceID int64     `json:"resource_id"`
	Quantity   int       `json:"quantity"`
	ReturnDate time.Time `json:"return_date"`
}
