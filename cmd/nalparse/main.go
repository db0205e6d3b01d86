/*
DESCRIPTION
  nalparse walks an H.264 Annex B byte-stream file, frames its NAL units and
  prints the decoded SPS, PPS and slice header syntax elements.
*/

package main

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vidtools/h264nal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	jsonOut bool
	slices  bool
	verbose bool
	logFile string
)

var rootCmd = &cobra.Command{
	Use:          "nalparse <file>",
	Short:        "parse H.264 NAL units from an Annex B byte stream",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().BoolVar(&jsonOut, "json", false, "print decoded records as JSON")
	rootCmd.Flags().BoolVar(&slices, "slices", true, "decode slice headers of IDR and non-IDR units")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "log to this file with rotation instead of stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if logFile != "" {
		w := &lumberjack.Logger{Filename: logFile, MaxSize: 50, MaxBackups: 3}
		return zerolog.New(w).Level(level).With().Timestamp().Logger()
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func run(cmd *cobra.Command, args []string) error {
	log := newLogger()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	p := h264nal.NewParser(data, h264nal.WithLogger(log))

	var n int
	for offset := 0; ; {
		unit, err := p.ParseNALUnit(offset)
		if err != nil {
			switch errors.Cause(err) {
			case h264nal.ErrNotEnoughBytes, h264nal.ErrStartCode:
				log.Debug().Int("offset", offset).Msg("end of stream")
			default:
				return err
			}
			break
		}
		n++
		fmt.Printf("%v\n", unit)

		if err := dump(p, unit); err != nil {
			// Payload failures are not terminal; resume at the next unit.
			log.Warn().Err(err).Int("offset", unit.DataOffset).
				Stringer("type", unit.Type).Msg("payload decode failed")
		}
		offset += unit.Size
	}
	log.Info().Int("units", n).Stringer("format", p.Format()).Msg("done")
	return nil
}

func dump(p *h264nal.Parser, unit h264nal.NALUnit) error {
	switch unit.Type {
	case h264nal.UnitTypeSPS:
		sps, err := p.ParseSPS(unit.DataOffset)
		if err != nil {
			return err
		}
		return emit("SPS", sps)
	case h264nal.UnitTypePPS:
		pps, err := p.ParsePPS(unit.DataOffset)
		if err != nil {
			return err
		}
		return emit("PPS", pps)
	case h264nal.UnitTypeIDR, h264nal.UnitTypeP:
		if !slices {
			return nil
		}
		sh, err := p.ParseSlice(unit.DataOffset, unit)
		if err != nil {
			return err
		}
		return emit(fmt.Sprintf("slice (%s)", sh.TypeName()), sh)
	}
	return nil
}

func emit(name string, record interface{}) error {
	if !jsonOut {
		fmt.Printf("  %s: %+v\n", name, record)
		return nil
	}
	b, err := json.MarshalIndent(record, "  ", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("  %s: %s\n", name, b)
	return nil
}
