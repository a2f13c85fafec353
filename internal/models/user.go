package models

import (
	"time"
)

type AccountType string

const (
	AccountPlayer  AccountType = "player"
	AccountClub    AccountType = "club"
	AccountAcademy AccountType = "academy"
	AccountAgent   AccountType = "agent"
	AccountTrainer AccountType = "trainer"
	AccountAdmin   AccountType = "admin"
)

func (a AccountType) Valid() bool {
	switch a {
	case AccountPlayer, AccountClub, AccountAcademy, AccountAgent, AccountTrainer, AccountAdmin:
		return true
	}
	return false
}

type User struct {
	PhoneNumber   string      `json:"phone_number" dynamodbav:"phone_number"`
	AccountType   AccountType `json:"account_type" dynamodbav:"account_type"`
	Name          string      `json:"name,omitempty" dynamodbav:"name,omitempty"`
	PhoneVerified bool        `json:"phone_verified" dynamodbav:"phone_verified"`
	CreatedAt     time.Time   `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" dynamodbav:"updated_at"`
}

func (u *User) GetPK() string {
	return "USER!" + u.PhoneNumber
}

func (u *User) GetSK() string {
	return "METADATA"
}
