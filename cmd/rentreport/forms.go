package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-rentreport/pkg/clock"
	"github.com/goliatone/go-rentreport/pkg/forms"
	"github.com/goliatone/go-rentreport/pkg/prompt"
	"github.com/goliatone/go-rentreport/pkg/validation"
)

var errInvalidValues = errors.New("values failed validation")

func newFormsCmd(_ *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "forms",
		Short: "List the bundled form definitions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := forms.Default()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, id := range registry.List() {
				form := registry.MustGet(id)
				fmt.Fprintf(tw, "%s\t%s\t%s %s\n", form.ID, form.Title, form.Method, form.Endpoint)
			}
			return tw.Flush()
		},
	}
}

func newValidateCmd(c *cli) *cobra.Command {
	var formID, valuesPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a JSON values file against a form",
		Example: `  rentreport validate --form rent-report --values report.json
  cat report.json | rentreport validate --form rent-report --values -`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := forms.Default()
			if err != nil {
				return err
			}
			form, err := registry.Get(formID)
			if err != nil {
				return err
			}
			raw, err := readValues(cmd.InOrStdin(), valuesPath)
			if err != nil {
				return err
			}
			validator := validation.New(validation.WithClock(clock.System()), validation.WithLogger(c.logger))
			_, result, err := validator.ValidateRaw(form, raw)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Valid {
				return errInvalidValues
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&formID, "form", "", "form id")
	cmd.Flags().StringVar(&valuesPath, "values", "-", "JSON values file, - for stdin")
	_ = cmd.MarkFlagRequired("form")
	return cmd
}

func newFillCmd(c *cli) *cobra.Command {
	var formID string
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Fill a form interactively and print the validated values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := forms.Default()
			if err != nil {
				return err
			}
			form, err := registry.Get(formID)
			if err != nil {
				return err
			}
			validator := validation.New(validation.WithClock(clock.System()), validation.WithLogger(c.logger))
			filler := prompt.New(validator,
				prompt.WithDriver(&prompt.SurveyDriver{Out: cmd.ErrOrStderr()}),
				prompt.WithLogger(c.logger),
			)
			values, result, err := filler.Fill(cmd.Context(), form)
			if err != nil {
				return err
			}
			if !result.Valid {
				return errInvalidValues
			}
			return writeJSON(cmd.OutOrStdout(), values)
		},
	}
	cmd.Flags().StringVar(&formID, "form", "", "form id")
	_ = cmd.MarkFlagRequired("form")
	return cmd
}

func readValues(stdin io.Reader, path string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read values: %w", err)
	}
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	return raw, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
