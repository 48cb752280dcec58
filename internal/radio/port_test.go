package radio

import (
	"errors"
	"testing"

	"go.bug.st/serial"

	"github.com/nerrad567/tank-relay/internal/infrastructure/config"
)

func TestSerialMode(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.SerialConfig
		wantParity serial.Parity
		wantStop   serial.StopBits
		wantErr    bool
	}{
		{
			name:       "8N1",
			cfg:        config.SerialConfig{BaudRate: 9600, DataBits: 8, Parity: "none", StopBits: "1"},
			wantParity: serial.NoParity,
			wantStop:   serial.OneStopBit,
		},
		{
			name:       "even parity two stop bits",
			cfg:        config.SerialConfig{BaudRate: 9600, DataBits: 7, Parity: "EVEN", StopBits: "2"},
			wantParity: serial.EvenParity,
			wantStop:   serial.TwoStopBits,
		},
		{
			name:       "empty defaults",
			cfg:        config.SerialConfig{BaudRate: 9600, DataBits: 8},
			wantParity: serial.NoParity,
			wantStop:   serial.OneStopBit,
		},
		{
			name:    "bad parity",
			cfg:     config.SerialConfig{Parity: "sideways"},
			wantErr: true,
		},
		{
			name:    "bad stop bits",
			cfg:     config.SerialConfig{StopBits: "3"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := serialMode(tt.cfg)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("serialMode() error = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("serialMode() error = %v", err)
			}
			if mode.BaudRate != tt.cfg.BaudRate || mode.DataBits != tt.cfg.DataBits {
				t.Errorf("mode = %+v", mode)
			}
			if mode.Parity != tt.wantParity {
				t.Errorf("Parity = %v, want %v", mode.Parity, tt.wantParity)
			}
			if mode.StopBits != tt.wantStop {
				t.Errorf("StopBits = %v, want %v", mode.StopBits, tt.wantStop)
			}
		})
	}
}

func TestSerialOpener_MissingDevice(t *testing.T) {
	open, err := SerialOpener(config.SerialConfig{
		Device:      "/dev/does-not-exist-tankrelay",
		BaudRate:    9600,
		DataBits:    8,
		Parity:      "none",
		StopBits:    "1",
		ReadTimeout: 1,
	})
	if err != nil {
		t.Fatalf("SerialOpener() error = %v", err)
	}

	if _, err := open(); !errors.Is(err, ErrOpenFailed) {
		t.Errorf("open() error = %v, want ErrOpenFailed", err)
	}
}

func TestDescribePortError_PlainError(t *testing.T) {
	if got := describePortError(errors.New("boom")); got != "io_error" {
		t.Errorf("describePortError() = %q, want io_error", got)
	}
}
