// internal/model/subscriber.go
package model

import (
	"strings"
	"time"
)

// Professions accepted on the signup form
var Professions = []string{
	"Athlete",
	"Coach",
	"Team Manager",
	"Scout",
	"Athletic Director",
	"Parent",
	"Student",
	"Sports Analyst",
	"Other",
}

// Subscriber is one waitlist entry
type Subscriber struct {
	ID                 string     `db:"id" json:"id"`
	FirstName          string     `db:"first_name" json:"first_name"`
	LastName           string     `db:"last_name" json:"last_name"`
	Email              string     `db:"email" json:"email"`
	PhoneNumber        string     `db:"phone_number" json:"phone_number,omitempty"`
	Profession         string     `db:"profession" json:"profession,omitempty"`
	WelcomeEmailSentAt *time.Time `db:"welcome_email_sent_at" json:"welcome_email_sent_at,omitempty"`
	ReferralCode       string     `db:"referral_code" json:"referral_code,omitempty"`
	ReferredBy         string     `db:"referred_by" json:"referred_by,omitempty"`
	ReferralCount      int        `db:"referral_count" json:"referral_count"`
	WaitlistPosition   int        `db:"waitlist_position" json:"waitlist_position"`
	Survey             *Survey    `db:"-" json:"survey,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Survey holds the optional answers given at signup
type Survey struct {
	ID                  string    `db:"id" json:"id"`
	WaitlistEntryID     string    `db:"waitlist_entry_id" json:"waitlist_entry_id"`
	DiscoverySource     string    `db:"discovery_source" json:"discoverySource,omitempty"`
	Age                 *int      `db:"age" json:"age,omitempty"`
	Sport               string    `db:"sport" json:"sport,omitempty"`
	TeamLevel           string    `db:"team_level" json:"teamLevel,omitempty"`
	AnalyticsExperience string    `db:"analytics_experience" json:"analyticsExperience,omitempty"`
	BudgetRange         string    `db:"budget_range" json:"budgetRange,omitempty"`
	PrimaryGoal         string    `db:"primary_goal" json:"primaryGoal,omitempty"`
	AdditionalFeedback  string    `db:"additional_feedback" json:"additionalFeedback,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

func (s *Subscriber) Recipient() Recipient {
	return Recipient{Email: s.Email, FirstName: s.FirstName, LastName: s.LastName}
}

func (s *Subscriber) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Initials are the upper-cased first letters of first and last name.
func (s *Subscriber) Initials() string {
	var b strings.Builder
	for _, part := range []string{s.FirstName, s.LastName} {
		for _, r := range part {
			b.WriteString(strings.ToUpper(string(r)))
			break
		}
	}
	return b.String()
}

// SignupNotice is the public projection broadcast when someone joins
type SignupNotice struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Initials   string    `json:"initials"`
	Profession string    `json:"profession,omitempty"`
	JoinedAt   time.Time `json:"joinedAt"`
}

func (s *Subscriber) Notice() SignupNotice {
	return SignupNotice{
		ID:         s.ID,
		Name:       s.FullName(),
		Initials:   s.Initials(),
		Profession: s.Profession,
		JoinedAt:   s.CreatedAt,
	}
}
