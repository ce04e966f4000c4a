package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/gymbridge/gymbridge/internal/config/errz"
)

// validIDPattern constrains script and widget ids. Dots are excluded so a
// "script.function" result key can never collide with a declared id.
var validIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validate checks the whole panel description and returns every problem
// found, joined. Only a nil return permits startup.
func (c *Config) Validate() error {
	errs := []error{}

	if c.Version != VersionLatest {
		errs = append(errs, fmt.Errorf("%w: %s", errz.ErrUnsupportedConfigVer, c.Version))
	}

	errs = append(errs, c.validateScripts()...)
	errs = append(errs, c.validateLayout()...)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", errz.ErrFailedToValidateConfig, err)
	}
	return nil
}

func (c *Config) validateScripts() []error {
	errs := []error{}
	seen := map[string]bool{}

	for i, s := range c.Scripts {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("%w: script at index %d", errz.ErrEmptyID, i))
			continue
		}
		if !validIDPattern.MatchString(s.Name) {
			errs = append(errs, fmt.Errorf("%w: script name %q", errz.ErrInvalidID, s.Name))
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("%w: script %q", errz.ErrDuplicateID, s.Name))
		}
		seen[s.Name] = true

		switch s.Type {
		case ScriptTypeDiscrete:
		case ScriptTypeStreaming:
			if len(s.Functions) > 0 {
				errs = append(errs, fmt.Errorf(
					"%w: script %q is streaming and cannot declare functions",
					errz.ErrFunctionsNotSupported, s.Name))
			}
		case "":
			errs = append(errs, fmt.Errorf(
				"%w: script %q has no type", errz.ErrMissingRequiredField, s.Name))
		default:
			errs = append(errs, fmt.Errorf(
				"%w: script %q type %q", errz.ErrInvalidScriptType, s.Name, s.Type))
		}

		if s.Path == "" {
			errs = append(errs, fmt.Errorf(
				"%w: script %q has no path", errz.ErrMissingRequiredField, s.Name))
		} else if err := checkReadable(s.Path); err != nil {
			errs = append(errs, fmt.Errorf(
				"%w: script %q: %w", errz.ErrScriptPathNotReadable, s.Name, err))
		}

		fnSeen := map[string]bool{}
		for j, fn := range s.Functions {
			if fn.Name == "" {
				errs = append(errs, fmt.Errorf(
					"%w: function at index %d of script %q", errz.ErrEmptyID, j, s.Name))
				continue
			}
			if !validIDPattern.MatchString(fn.Name) {
				errs = append(errs, fmt.Errorf(
					"%w: function %q of script %q", errz.ErrInvalidID, fn.Name, s.Name))
			}
			if fnSeen[fn.Name] {
				errs = append(errs, fmt.Errorf(
					"%w: function %q of script %q", errz.ErrDuplicateID, fn.Name, s.Name))
			}
			fnSeen[fn.Name] = true
		}
	}

	return errs
}

func (c *Config) validateLayout() []error {
	errs := []error{}

	// Widget ids share a namespace with script names: both are app state keys.
	seen := map[string]bool{}
	for _, s := range c.Scripts {
		if s.Name != "" {
			seen[s.Name] = true
		}
	}

	claim := func(kind, id string) {
		if id == "" {
			errs = append(errs, fmt.Errorf("%w: %s", errz.ErrEmptyID, kind))
			return
		}
		if !validIDPattern.MatchString(id) {
			errs = append(errs, fmt.Errorf("%w: %s %q", errz.ErrInvalidID, kind, id))
			return
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("%w: %s %q", errz.ErrDuplicateID, kind, id))
		}
		seen[id] = true
	}

	for _, s := range c.Layout.Sliders {
		claim("slider", s.ID)
		if s.Min >= s.Max {
			errs = append(errs, fmt.Errorf(
				"%w: slider %q min %v is not below max %v", errz.ErrInvalidValue, s.ID, s.Min, s.Max))
		}
		if s.Default < s.Min || s.Default > s.Max {
			errs = append(errs, fmt.Errorf(
				"%w: slider %q default %v is outside [%v, %v]",
				errz.ErrInvalidValue, s.ID, s.Default, s.Min, s.Max))
		}
	}
	for _, f := range c.Layout.InputFields {
		claim("input field", f.ID)
	}

	// Each stream feeds exactly one widget; a shared stream_id would make two
	// widgets fight over the same frames.
	streamSeen := map[string]bool{}
	for _, p := range c.Layout.Plots {
		if p.StreamID == "" {
			errs = append(errs, fmt.Errorf(
				"%w: plot %q has no stream_id", errz.ErrMissingRequiredField, p.Title))
			continue
		}
		if streamSeen[p.StreamID] {
			errs = append(errs, fmt.Errorf(
				"%w: stream id %q", errz.ErrDuplicateID, p.StreamID))
		}
		streamSeen[p.StreamID] = true
	}
	if id := c.Layout.Table.StreamID; id != "" && streamSeen[id] {
		errs = append(errs, fmt.Errorf(
			"%w: stream id %q", errz.ErrDuplicateID, id))
	}

	return errs
}

// checkReadable confirms the path resolves to a readable regular file.
func checkReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}
