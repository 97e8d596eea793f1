// Package bootstrap wires the pieces shared by the api and worker binaries.
package bootstrap

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/detection"
	"github.com/your-org/facewatch/internal/notify"
	"github.com/your-org/facewatch/internal/vision"
	"github.com/your-org/facewatch/internal/vision/haar"
	"github.com/your-org/facewatch/internal/vision/retina"
)

const (
	BackendHaar   = "haar"
	BackendRetina = "retinaface"

	retinaModelFile = "det_10g.onnx"
)

// BackendLoader returns the loader for the configured detector backend.
// The ONNX runtime is initialized inside the loader so a missing shared
// library leaves the localizer uninitialized instead of stopping the process.
func BackendLoader(cfg config.VisionConfig) func() (vision.Backend, error) {
	switch strings.ToLower(cfg.Detector) {
	case BackendRetina:
		return func() (vision.Backend, error) {
			if err := retina.InitRuntime(); err != nil {
				return nil, err
			}
			return retina.New(filepath.Join(cfg.ModelsDir, retinaModelFile))
		}
	case BackendHaar, "":
		return func() (vision.Backend, error) {
			return haar.Load(cfg.CascadePath)
		}
	default:
		return func() (vision.Backend, error) {
			return nil, fmt.Errorf("unknown detector backend %q", cfg.Detector)
		}
	}
}

// InitLocalizer builds the localizer and tries to load its backend once.
// Failure is logged; the localizer then reports not ready.
func InitLocalizer(cfg config.VisionConfig) *vision.Localizer {
	l := vision.NewLocalizer(cfg)
	if err := l.Initialize(BackendLoader(cfg)); err != nil {
		slog.Error("face detector unavailable", "backend", cfg.Detector, "error", err)
	} else {
		slog.Info("face detector ready", "backend", cfg.Detector)
	}
	return l
}

// NewNormalizer builds the image normalizer with OpenCV grayscale conversion
// and histogram equalization.
func NewNormalizer(cfg config.VisionConfig, store vision.ObjectStore) *vision.Normalizer {
	return vision.NewNormalizer(store, cfg.MinImageSize).UsePreprocessor(haar.Equalize)
}

// NewDispatcher builds the notification dispatcher with whichever channels
// are configured.
func NewDispatcher(cfg config.NotifyConfig, store detection.StatusStore) *detection.Dispatcher {
	var email, sms notify.Channel
	if cfg.Resend.APIKey != "" && cfg.Resend.From != "" {
		email = notify.NewEmailChannel(cfg.Resend)
	} else {
		slog.Warn("email notifications disabled: resend is not configured")
	}
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" && cfg.Twilio.From != "" {
		sms = notify.NewSMSChannel(cfg.Twilio)
	} else {
		slog.Warn("sms notifications disabled: twilio is not configured")
	}
	return detection.NewDispatcher(email, sms, store, cfg.DeliveryTimeout)
}
