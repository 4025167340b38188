package stream

import (
	"crypto/tls"
	"log/slog"

	"rppg-dashboard/internal/config"
)

func NewDialerFromConfig(cfg config.Config, tlsCfg *tls.Config, logger *slog.Logger) Dialer {
	if cfg.StreamMode == config.StreamModeGRPC {
		return NewGRPCDialer(cfg.BackendGRPCAddr, cfg.GRPCStreamMethod, cfg.APIKey, cfg.ClientID, tlsCfg, logger)
	}
	url := BuildWebSocketURL(cfg.BackendWSBase, cfg.APIKey, cfg.ClientID)
	return NewWebSocketDialer(url, tlsCfg, cfg.WSWriteTimeout, cfg.WSPingInterval, logger)
}
