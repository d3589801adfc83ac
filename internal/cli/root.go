// Package cli implements the registration-cli commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hackgods/hospital-registration-agent/internal/booking"
	"github.com/hackgods/hospital-registration-agent/internal/conversation"
	"github.com/hackgods/hospital-registration-agent/internal/observability/metrics"
	"github.com/hackgods/hospital-registration-agent/internal/session"
	"github.com/hackgods/hospital-registration-agent/pkg/logging"
)

type options struct {
	dbPath      string
	inMemory    bool
	departments string
	logLevel    string
}

// NewRootCmd builds the command tree. Each call has its own flag state.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "registration-cli",
		Short:         "Hospital registration agent on the command line",
		Long:          "Chat with the registration agent and inspect booked slots and patients. SQLite-backed, single binary.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.dbPath, "db", "d", "", "Database path (default: $REGISTRATION_DB or ~/.registration-agent/registrations.db)")
	root.PersistentFlags().BoolVar(&opts.inMemory, "memory", false, "Keep everything in memory for this run")
	root.PersistentFlags().StringVar(&opts.departments, "departments", os.Getenv("DEPARTMENTS_FILE"), "Department catalog JSON file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "error", "Log level written to stderr")

	root.AddCommand(newChatCmd(opts), newSlotCmd(opts), newPatientCmd(opts))
	return root
}

func (o *options) resolveDBPath() string {
	if o.dbPath != "" {
		return o.dbPath
	}
	if env := os.Getenv("REGISTRATION_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".registration-agent", "registrations.db")
}

// runtime is everything a subcommand needs; close releases the database
type runtime struct {
	allocator *booking.Allocator
	machine   *conversation.Machine
	close     func()
}

func (o *options) open(stderr io.Writer) (*runtime, error) {
	catalog, err := booking.LoadCatalog(o.departments)
	if err != nil {
		return nil, fmt.Errorf("load departments: %w", err)
	}
	logger := logging.NewWithWriter(stderr, o.logLevel)

	var repo booking.Repository
	closeFn := func() {}
	if o.inMemory {
		repo = booking.NewMemoryRepository()
	} else {
		sqliteRepo, err := booking.NewSQLiteRepository(o.resolveDBPath())
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		repo = sqliteRepo
		closeFn = func() { _ = sqliteRepo.Close() }
	}

	// a private registry keeps repeated command runs from double-registering
	m := newMetrics()
	allocator := booking.NewAllocator(repo, catalog, nil, logger, m)
	sessions := session.NewStore(session.NewMemoryRepository(), session.DefaultTTL, logger, session.WithMetrics(m))

	return &runtime{
		allocator: allocator,
		machine:   conversation.NewMachine(sessions, allocator, catalog, logger, conversation.WithMetrics(m)),
		close:     closeFn,
	}, nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func newMetrics() *metrics.BookingMetrics {
	return metrics.NewBookingMetrics(prometheus.NewRegistry())
}
