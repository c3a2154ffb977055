package domain

import "errors"

var ErrChannelNameLen = errors.New("channel name must be 2-20 characters")

type ChannelID int64

const (
	ChannelText  = "text"
	ChannelVoice = "voice"
)

type Channel struct {
	ID    ChannelID `json:"id"`
	Name  string    `json:"name"`
	Topic string    `json:"topic,omitempty"`
	Type  string    `json:"type,omitempty"`
}

func ValidateChannelName(name string) error {
	if len(name) < MinChannelLen || len(name) > MaxChannelLen {
		return ErrChannelNameLen
	}
	return nil
}
