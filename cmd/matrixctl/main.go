// Command matrixctl runs maintenance jobs against the task database.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/jessevdk/go-flags"
	"github.com/yukikurage/priority-matrix/internal/config"
	"github.com/yukikurage/priority-matrix/internal/constants"
	"github.com/yukikurage/priority-matrix/internal/database"
	"github.com/yukikurage/priority-matrix/internal/logger"
	"github.com/yukikurage/priority-matrix/internal/models"
	"github.com/yukikurage/priority-matrix/internal/repository"
	"go.uber.org/zap"
)

type app struct {
	tasks repository.TaskRepository
	log   *zap.Logger
	out   io.Writer
}

type randomizeCommand struct {
	app  *app
	Seed uint64 `long:"seed" description:"Seed for reproducible scores (0 picks one at random)"`
}

// Execute gives every task a fresh importance and urgency
func (cmd *randomizeCommand) Execute([]string) error {
	ctx := context.Background()
	tasks, err := cmd.app.tasks.ListAll(ctx)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(cmd.Seed, cmd.Seed^0x9e3779b97f4a7c15))
	if cmd.Seed == 0 {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	for _, task := range tasks {
		fields := map[string]any{
			"importance": rng.IntN(constants.MaxScore + 1),
			"urgency":    rng.IntN(constants.MaxScore + 1),
		}
		err := cmd.app.tasks.UpdateVisible(ctx, task.ID, ownerOf(task), fields)
		// A task deleted since the listing is skipped
		if err != nil && !errors.Is(err, repository.ErrNoRowsAffected) {
			return fmt.Errorf("task %d: %w", task.ID, err)
		}
	}

	cmd.app.log.Info("priorities randomized", zap.Int("tasks", len(tasks)))
	fmt.Fprintf(cmd.app.out, "Randomized %d tasks\n", len(tasks))
	return nil
}

type clearImportedCommand struct {
	app  *app
	Keep uint64 `long:"keep" description:"Keep tasks with an id up to this value" required:"true"`
}

// Execute removes every task created after the first Keep ids
func (cmd *clearImportedCommand) Execute([]string) error {
	deleted, err := cmd.app.tasks.DeleteAbove(context.Background(), cmd.Keep)
	if err != nil {
		return err
	}

	cmd.app.log.Info("imported tasks cleared", zap.Uint64("keep", cmd.Keep), zap.Int64("deleted", deleted))
	fmt.Fprintf(cmd.app.out, "Deleted %d tasks\n", deleted)
	return nil
}

type reportCommand struct {
	app   *app
	Limit int  `long:"limit" short:"n" default:"20" description:"Number of tasks to list"`
	Done  bool `long:"done" description:"Include completed tasks"`
}

// Execute prints tasks ranked by importance times urgency
func (cmd *reportCommand) Execute([]string) error {
	tasks, err := cmd.app.tasks.ListAll(context.Background())
	if err != nil {
		return err
	}

	if !cmd.Done {
		tasks = slices.DeleteFunc(tasks, func(t models.Task) bool { return t.Done })
	}
	slices.SortStableFunc(tasks, func(a, b models.Task) int {
		return priority(b) - priority(a)
	})
	if cmd.Limit > 0 && len(tasks) > cmd.Limit {
		tasks = tasks[:cmd.Limit]
	}

	w := tabwriter.NewWriter(cmd.app.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRIORITY\tIMPORTANCE\tURGENCY\tQUADRANT\tNAME")
	for _, t := range tasks {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\t%s\n", t.ID, priority(t), t.Importance, t.Urgency, quadrant(t), t.Name)
	}
	return w.Flush()
}

func priority(t models.Task) int {
	return t.Importance * t.Urgency
}

// quadrant names the Eisenhower quadrant; scores above the midpoint count as high
func quadrant(t models.Task) string {
	important := t.Importance > constants.DefaultScore
	urgent := t.Urgency > constants.DefaultScore
	switch {
	case important && urgent:
		return "do"
	case important:
		return "schedule"
	case urgent:
		return "delegate"
	default:
		return "eliminate"
	}
}

func ownerOf(t models.Task) string {
	if t.UserID == nil {
		return ""
	}
	return *t.UserID
}

func run(args []string, out io.Writer) error {
	cfg := config.Load()

	zlog, err := logger.New(logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer zlog.Sync()

	if err := database.Connect(cfg, zlog); err != nil {
		return err
	}
	db := database.GetDB()
	if err := database.Migrate(db); err != nil {
		return err
	}

	a := &app{
		tasks: repository.NewTaskRepository(db),
		log:   zlog,
		out:   out,
	}

	parser := flags.NewParser(nil, flags.Default)
	if _, err := parser.AddCommand("randomize-priorities", "Randomize scores",
		"Assign a random importance and urgency to every task.", &randomizeCommand{app: a}); err != nil {
		return err
	}
	if _, err := parser.AddCommand("clear-imported", "Delete imported tasks",
		"Delete every task whose id is above --keep, with its sessions and edges.", &clearImportedCommand{app: a}); err != nil {
		return err
	}
	if _, err := parser.AddCommand("priority-report", "Print the priority ranking",
		"List tasks ranked by importance times urgency with their quadrant.", &reportCommand{app: a}); err != nil {
		return err
	}

	_, err = parser.ParseArgs(args)
	return err
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		// flags.Default already printed parser errors
		if !errors.As(err, &ferr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
