package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/adaboard/internal/device"
	goble "github.com/srg/adaboard/internal/device/go-ble"
	"github.com/srg/adaboard/internal/device/simulated"
	"github.com/srg/adaboard/internal/service"
	"github.com/srg/adaboard/pkg/board"
	"github.com/srg/adaboard/pkg/config"
	"github.com/srg/adaboard/scanner"
)

// lookupTimeout bounds the scan that resolves an address to its advertisement.
const lookupTimeout = 5 * time.Second

// simulatedBoards are the boards seen by 'scan --simulate'; the first one is
// also the board other commands connect to when no address is given.
var simulatedBoards = []simulated.Options{
	{ID: "00:00:00:00:00:01", Name: "Simulated CPB", ProductID: simulated.ProductCircuitPlaygroundBluefruit},
	{ID: "00:00:00:00:00:02", Name: "Simulated CLUE", ProductID: simulated.ProductCLUE},
	{ID: "00:00:00:00:00:03", Name: "Simulated Feather Sense", ProductID: simulated.ProductFeatherSense},
}

// settings are the config and logger every command starts from.
type settings struct {
	cfg      *config.Config
	logger   *logrus.Logger
	simulate bool
}

func loadSettings(cmd *cobra.Command) (*settings, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := configureLogger(cmd, "verbose", cfg)
	if err != nil {
		return nil, err
	}
	return &settings{cfg: cfg, logger: logger, simulate: mustBool(cmd, "simulate")}, nil
}

// scanningDevice returns the device scan reads advertisements from.
func (s *settings) scanningDevice() (device.ScanningDevice, error) {
	if !s.simulate {
		return goble.NewScanner()
	}
	sc := &simulated.Scanner{}
	for _, opts := range simulatedBoards {
		sc.Accessories = append(sc.Accessories, simulated.New(opts, s.logger))
	}
	return sc, nil
}

// session is a board attached to a connected transport.
type session struct {
	board      *board.Board
	report     *board.SetupReport
	disconnect func()
	logger     *logrus.Logger
	// lost is closed when the link drops; nil for transports that cannot tell.
	lost <-chan struct{}
}

// connect opens the board at address and enables kinds on it.
// Services that fail to enable are logged; the board stays usable for the rest.
func (s *settings) connect(ctx context.Context, address string, kinds ...service.Kind) (*session, error) {
	var (
		transport  device.Transport
		disconnect func()
	)
	if s.simulate {
		opts := simulatedBoards[0]
		for _, o := range simulatedBoards {
			if o.ID == address {
				opts = o
			}
		}
		acc := simulated.New(opts, s.logger)
		transport, disconnect = acc, acc.Disconnect
	} else {
		conn, err := s.dial(ctx, address)
		if err != nil {
			return nil, err
		}
		transport = conn
		disconnect = func() {
			if err := conn.Disconnect(); err != nil {
				s.logger.WithError(err).Debug("Disconnect failed")
			}
		}
	}

	b := board.New(s.logger, s.cfg.BoardOptions())
	setupCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	report, err := b.Setup(setupCtx, transport, kinds...)
	if err != nil {
		disconnect()
		return nil, err
	}
	for _, kind := range report.Failed() {
		s.logger.WithFields(logrus.Fields{
			"service": kind,
			"error":   report.Results.Value(kind),
		}).Warn("Service not enabled")
	}
	sess := &session{board: b, report: report, disconnect: disconnect, logger: s.logger}
	if n, ok := transport.(device.DisconnectNotifier); ok {
		sess.lost = n.Disconnected()
	}
	return sess, nil
}

// dial resolves address to its advertisement and connects. The advertisement
// carries the manufacturer data that identifies the board model.
func (s *settings) dial(ctx context.Context, address string) (*goble.BLEConnection, error) {
	if address == "" {
		return nil, fmt.Errorf("board address is required without --simulate")
	}
	dev, err := goble.NewScanner()
	if err != nil {
		return nil, err
	}
	found, err := scanner.New(dev, s.logger).Scan(ctx, &scanner.Options{
		Duration:        lookupTimeout,
		DuplicateFilter: true,
		AllowList:       []string{address},
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrBoardNotFound, address)
	}

	conn := goble.NewBLEConnection(found[0].Address, found[0].Name, found[0].ManufacturerData, s.logger)
	connCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	if err := conn.Connect(connCtx); err != nil {
		return nil, fmt.Errorf("connect %s: %w", address, err)
	}
	return conn, nil
}

// Close turns pixels off, detaches the board and drops the link.
func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.board.Close(ctx); err != nil && !errors.Is(err, board.ErrNoAccessory) {
		s.logger.WithError(err).Warn("Board close failed")
	}
	s.disconnect()
}

// parseKinds resolves service names; empty names select fallback.
func parseKinds(names, fallback []string) ([]service.Kind, error) {
	if len(names) == 0 {
		names = fallback
	}
	catalog := service.DefaultCatalog()
	kinds := make([]service.Kind, 0, len(names))
	for _, name := range names {
		kind, err := catalog.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

const holdPollInterval = 50 * time.Millisecond

// hold blocks until ctx ends, the link drops or done reports true. An elapsed
// deadline is a normal end; a nil done waits for ctx alone.
func (s *session) hold(ctx context.Context, done func() bool) error {
	ticker := time.NewTicker(holdPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil
			}
			return ctx.Err()
		case <-s.lost:
			return ErrConnectionLost
		case <-ticker.C:
			if done != nil && done() {
				return nil
			}
		}
	}
}
