// Package directory is the client for the external Student Directory.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dmehra2102/university-lending/pkg/apperr"
)

var ErrStudentNotFound = fmt.Errorf("student %w", apperr.ErrNotFound)

type Student struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	StudentID string `json:"student_id"`
	Career    string `json:"career"`
	Semester  int    `json:"semester"`
}

type Client struct {
	http *resty.Client
	log  *slog.Logger
}

// NewClient builds a directory client. Every call is bounded by timeout, and
// a failed transport attempt is retried up to retries times.
func NewClient(log *slog.Logger, baseURL string, timeout time.Duration, retries int) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(50 * time.Millisecond).
		SetRetryMaxWaitTime(500 * time.Millisecond).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{http: c, log: log}
}

// Get resolves a student code such as "A2023001".
func (c *Client) Get(ctx context.Context, studentID string) (Student, error) {
	var student Student
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&student).
		Get("/students/by-student-id/" + url.PathEscape(studentID))
	if err != nil {
		c.log.Warn("student directory unreachable", "student_id", studentID, "err", err)
		return Student{}, fmt.Errorf("student directory: %v: %w", err, apperr.ErrServiceUnavailable)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return Student{}, fmt.Errorf("%s: %w", studentID, ErrStudentNotFound)
	case code != http.StatusOK:
		c.log.Warn("student directory error", "student_id", studentID, "status", code)
		return Student{}, fmt.Errorf("student directory returned %d: %w", code, apperr.ErrServiceUnavailable)
	}
	return student, nil
}

func (c *Client) Verify(ctx context.Context, studentID string) error {
	_, err := c.Get(ctx, studentID)
	return err
}

// Email satisfies the notifier's recipient lookup.
func (c *Client) Email(ctx context.Context, studentID string) (string, error) {
	s, err := c.Get(ctx, studentID)
	if err != nil {
		return "", err
	}
	return s.Email, nil
}
