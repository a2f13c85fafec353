package models

import "time"

// OTPSource is the channel that delivered a code.
type OTPSource string

const (
	SourceSMS      OTPSource = "sms"
	SourceWhatsApp OTPSource = "whatsapp"
)

func (s OTPSource) Valid() bool {
	return s == SourceSMS || s == SourceWhatsApp
}

// OTPRecord is the single live code issued for a phone number.
type OTPRecord struct {
	Phone    string    `json:"phone" dynamodbav:"Phone" firestore:"phone"`
	Code     string    `json:"otp" dynamodbav:"Code" firestore:"otp"`
	IssuedAt time.Time `json:"issued_at" dynamodbav:"IssuedAt" firestore:"timestamp"`
	Attempts int       `json:"attempts" dynamodbav:"Attempts" firestore:"attempts"`
	Expired  bool      `json:"expired" dynamodbav:"Expired" firestore:"expired"`
	Source   OTPSource `json:"source" dynamodbav:"Source" firestore:"source"`
	Version  int64     `json:"version" dynamodbav:"Version" firestore:"version"`
}
