package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmehra2102/university-lending/pkg/apperr"
)

const Subject = "Loan system notification"

type Notification struct {
	StudentID string `json:"student_id"`
	Message   string `json:"message"`
}

func (n Notification) Validate() error {
	if strings.TrimSpace(n.StudentID) == "" {
		return fmt.Errorf("student_id is required: %w", apperr.ErrInvalidArgument)
	}
	if strings.TrimSpace(n.Message) == "" {
		return fmt.Errorf("message is required: %w", apperr.ErrInvalidArgument)
	}
	return nil
}

func LoanCreatedMessage(resourceID int64, quantity int, due time.Time) string {
	return fmt.Sprintf("A loan of %d unit(s) of resource %d has been registered. Please return it before %s.",
		quantity, resourceID, due.Format(time.DateOnly))
}

func LoanReturnedMessage(resourceID int64) string {
	return fmt.Sprintf("The return of resource %d has been registered.", resourceID)
}
