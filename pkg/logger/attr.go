package logger

import (
	"log/slog"
	"time"
)

// Error logs err under "error". A nil error yields an empty attribute that
// slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component names the subsystem emitting the record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func TenantID(id any) slog.Attr {
	return slog.Any("tenant_id", id)
}

func EndpointID(id any) slog.Attr {
	return slog.Any("endpoint_id", id)
}

func DeliveryID(id any) slog.Attr {
	return slog.Any("delivery_id", id)
}

func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Attempt is the 1-based attempt number of a delivery.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// StatusCode logs an HTTP status; zero means no response was received and is
// omitted.
func StatusCode(code int) slog.Attr {
	if code == 0 {
		return slog.Attr{}
	}
	return slog.Int("status_code", code)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
