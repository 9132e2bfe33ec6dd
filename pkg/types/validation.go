package types

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxContentBytes bounds message content; matches the database TEXT budget.
const maxContentBytes = 65536

// PreviewLength is the rune budget for notification previews.
const PreviewLength = 100

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks identity string format: 1-50 characters,
// alphanumeric plus underscore and hyphen.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidMessageType reports whether t is a known message type.
func IsValidMessageType(t string) bool {
	return t == MessageTypeText || t == MessageTypeMeetingLink
}

// IsValidChannel reports whether c is a known delivery channel.
func IsValidChannel(c string) bool {
	return c == ChannelInApp || c == ChannelPush || c == ChannelEmail
}

// IsValidPriority reports whether p is a known priority.
func IsValidPriority(p string) bool {
	return p == PriorityLow || p == PriorityNormal || p == PriorityHigh
}

// IsValidNotificationType reports whether t is an enumerated notification type.
func IsValidNotificationType(t string) bool {
	switch t {
	case NotificationNewMessage,
		NotificationSessionRequest,
		NotificationSessionConfirmed,
		NotificationSessionRescheduled,
		NotificationSystemAnnouncement:
		return true
	default:
		return false
	}
}

// Validate checks a send_message payload before anything touches storage.
func (p *SendMessagePayload) Validate() error {
	if !IsValidUserID(p.RecipientID) {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(p.Content) == "" {
		return ErrEmptyContent
	}
	if len(p.Content) > maxContentBytes {
		return ErrContentTooLarge
	}
	if !IsValidMessageType(p.MessageType) {
		return ErrInvalidMessageType
	}
	return nil
}

// Validate checks a share_meeting_link payload.
func (p *ShareMeetingLinkPayload) Validate() error {
	if !IsValidUserID(p.RecipientID) {
		return ErrInvalidUserID
	}
	link := strings.TrimSpace(p.MeetingLink)
	if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
		return ErrInvalidLink
	}
	return nil
}

// Validate checks a request_reschedule payload.
func (p *RequestReschedulePayload) Validate() error {
	if p.SessionID == "" {
		return ErrMissingSessionID
	}
	if p.NewDate.IsZero() {
		return ErrMissingTime
	}
	return nil
}

// Validate checks a fan-out request before the record is built.
func (r *NotificationRequest) Validate() error {
	if !IsValidUserID(r.RecipientID) {
		return ErrInvalidUserID
	}
	if !IsValidNotificationType(r.Type) {
		return ErrInvalidType
	}
	if !IsValidPriority(r.Priority) {
		return ErrInvalidPriority
	}
	for _, c := range r.Channels {
		if !IsValidChannel(c) {
			return ErrInvalidChannel
		}
	}
	return nil
}

// Preview truncates content to PreviewLength runes, appending an ellipsis
// marker when anything was cut.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= PreviewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:PreviewLength]) + "..."
}
