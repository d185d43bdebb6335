package ui

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// It covers the full "ns:action:payload" string.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("ui: callback_data too long")

// CheckDataLen validates a full callback-data string against the limit.
func CheckDataLen(data string) error {
	if len(data) > MaxCallbackDataLen {
		return ErrCallbackDataTooLong
	}
	return nil
}

// Data formats callback data as "ns:action" or "ns:action:payload".
// The payload is kept as-is; for structured payloads prefer PackJSON.
func Data(ns, action, payload string) string {
	ns = strings.TrimSpace(ns)
	action = strings.TrimSpace(action)
	if payload == "" {
		return ns + ":" + action
	}
	return ns + ":" + action + ":" + payload
}

// PackJSON marshals v to JSON and Base64URL-encodes it (no padding),
// suitable for the payload part of callback data.
func PackJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// UnpackJSON decodes a base64url payload and unmarshals into v.
func UnpackJSON(payload string, v any) error {
	b, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
