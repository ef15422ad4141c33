package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"
	"github.com/yuin/goldmark"

	"github.com/hpungsan/veileder/internal/advisor"
	"github.com/hpungsan/veileder/internal/db"
	"github.com/hpungsan/veileder/internal/errors"
	"github.com/hpungsan/veileder/internal/knowledge"
)

// maxStdinBytes bounds a question piped on stdin.
const maxStdinBytes = 64 * 1024

// newCLIApp creates the CLI application with all commands.
// rt may be nil when only help or version output is needed.
func newCLIApp(rt *runtime) *cli.App {
	app := &cli.App{
		Name:    "veileder",
		Usage:   "Studieveileder: answers study-advising questions from course, program and regulation data",
		Version: Version,
		Commands: []*cli.Command{
			askCmd(rt),
			chatCmd(rt),
			classifyCmd(rt),
			courseCmd(rt),
			programsCmd(rt),
			programCmd(rt),
			loadCmd(rt),
			statusCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func askCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask one question (or pipe it via stdin)",
		ArgsUsage: "<question>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print the full answer trace as JSON"},
			&cli.BoolFlag{Name: "html", Usage: "Render the answer as HTML"},
		},
		Action: func(c *cli.Context) error {
			question := strings.Join(c.Args().Slice(), " ")
			if question == "" && stdinHasData(c.App.Reader) {
				text, err := readStdin(c.App.Reader, maxStdinBytes)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				question = text
			}

			out, err := rt.advisor.Ask(c.Context, advisor.AskInput{Question: question})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, out)
			}
			if c.Bool("html") {
				return outputHTML(c.App.Writer, out.Answer)
			}
			_, err = fmt.Fprintln(c.App.Writer, out.Answer)
			return err
		},
	}
}

func chatCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive conversation; follow-up questions keep context",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "conversation", Aliases: []string{"c"}, Usage: "Conversation id (generated when omitted)"},
		},
		Action: func(c *cli.Context) error {
			id := c.String("conversation")
			if id == "" {
				id = ulid.Make().String()
			}
			fmt.Fprintf(c.App.ErrWriter, "samtale %s (skriv \"avslutt\" for å avslutte)\n", id)

			scanner := bufio.NewScanner(c.App.Reader)
			scanner.Buffer(make([]byte, 0, 4096), maxStdinBytes)
			for {
				fmt.Fprint(c.App.Writer, "> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "avslutt" || line == "exit" || line == "quit" {
					break
				}
				fmt.Fprintln(c.App.Writer, rt.advisor.Answer(c.Context, line, id))
			}
			fmt.Fprintln(c.App.Writer)
			if err := scanner.Err(); err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			return nil
		},
	}
}

func classifyCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Show extracted entities and the detected intent of a question",
		ArgsUsage: "<question>",
		Action: func(c *cli.Context) error {
			question := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(question) == "" {
				return outputError(errors.NewInvalidRequest("question is required"))
			}

			entities, cls, notice := rt.advisor.Classify(c.Context, question)
			out := map[string]any{
				"entities": entities,
				"intent":   cls.Intent,
				"rule":     cls.Rule,
				"fallback": cls.Fallback,
			}
			if notice != nil {
				out["notice"] = notice.Error()
			}
			return outputJSON(c.App.Writer, out)
		},
	}
}

func courseCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "course",
		Usage:     "Show a course by code",
		ArgsUsage: "<code>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("course code is required"))
			}
			course, err := rt.store.LookupCourse(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, course)
		},
	}
}

func programsCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "programs",
		Usage: "List study programs",
		Action: func(c *cli.Context) error {
			names, err := rt.store.ListPrograms(c.Context)
			if err != nil {
				return outputError(err)
			}
			for _, name := range names {
				fmt.Fprintln(c.App.Writer, name)
			}
			return nil
		},
	}
}

func programCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "program",
		Usage:     "Show the curriculum of a study program",
		ArgsUsage: "<name>",
		Action: func(c *cli.Context) error {
			name := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(name) == "" {
				return outputError(errors.NewInvalidRequest("program name is required"))
			}
			program, err := rt.store.LookupProgram(c.Context, name)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, program)
		},
	}
}

func loadCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "Load a JSONL knowledge snapshot (courses, programs, rule chunks)",
		ArgsUsage: "<file.jsonl>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "strict", Usage: "Require the header and write nothing if any line is invalid"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("snapshot path is required"))
			}

			out, err := knowledge.LoadSnapshot(c.Context, rt.db, knowledge.LoadInput{
				Path:   c.Args().First(),
				Strict: c.Bool("strict"),
			})
			if err != nil {
				return outputError(err)
			}
			rt.advisor.RefreshPrograms()

			if err := outputJSON(c.App.Writer, out); err != nil {
				return err
			}
			if c.Bool("strict") && len(out.Errors) > 0 {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("snapshot has %d rejected lines, nothing loaded", len(out.Errors))))
			}
			return nil
		},
	}
}

func statusCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show knowledge base size and model configuration",
		Action: func(c *cli.Context) error {
			courses, err := db.CountCourses(c.Context, rt.db)
			if err != nil {
				return outputError(err)
			}
			programs, err := db.ListProgramNames(c.Context, rt.db)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{
				"base_dir":        rt.baseDir,
				"courses":         courses,
				"programs":        len(programs),
				"provider":        rt.cfg.Provider,
				"fast_model":      rt.cfg.FastModel,
				"rich_model":      rt.cfg.RichModel,
				"embedding_model": rt.cfg.EmbeddingModel,
				"rerank":          rt.cfg.Rerank(),
			})
		},
	}
}

// Helper functions

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHTML renders a markdown answer as HTML.
func outputHTML(w io.Writer, markdown string) error {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return outputError(errors.NewInternal(err))
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// outputError formats error for CLI.
func outputError(err error) error {
	var aErr *errors.AdvisorError
	if stderrors.As(err, &aErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", aErr.Code, aErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if r is a pipe or file rather than a terminal.
func stdinHasData(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return r != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from r.
func readStdin(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("input exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}
