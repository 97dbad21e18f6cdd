package domain

import "time"

// Role is the privilege level of an account.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// UserAccount is the public view of an account. Login is unique and lowercase.
type UserAccount struct {
	ID          string     `json:"id"`
	Login       string     `json:"login"`
	DisplayName string     `json:"displayName"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	Role        Role       `json:"role"`
}

// StoredUserRecord is what the users namespace holds.
type StoredUserRecord struct {
	UserAccount
	PasswordHash string `json:"passwordHash"`
}

// SessionLog covers one login. LogoutAt and DurationMs are set at most once.
type SessionLog struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	LoginAt    time.Time  `json:"loginAt"`
	LogoutAt   *time.Time `json:"logoutAt,omitempty"`
	DurationMs *int64     `json:"durationMs,omitempty"`
}

// Closed reports whether the session has been ended.
func (s SessionLog) Closed() bool { return s.LogoutAt != nil }

// ExamAttemptLog records one finished exam. It is never mutated after creation.
type ExamAttemptLog struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId,omitempty"`
	UserID     string    `json:"userId"`
	ExamID     string    `json:"examId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	DurationMs int64     `json:"durationMs"`
	Score      int       `json:"score"`
	Total      int       `json:"total"`
}
