// Package logger builds the service's *slog.Logger.
//
// New wires a text or JSON handler, static attributes and context extractors
// behind a single constructor configured with Option functions. The
// attribute helpers in attr.go keep key names consistent across the webhook
// engine (tenant_id, endpoint_id, delivery_id, attempt, ...).
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.AppEnv, "webhookd"),
//	    logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	log.InfoContext(ctx, "delivery succeeded",
//	    logger.TenantID(tenantID),
//	    logger.Attempt(2),
//	)
package logger
