package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/yashikakaushik06/whiteboard-app/internal/draw"
)

// runScript feeds pointer and toolbar commands into s, one per line:
//
//	down X Y | move X Y | up | clear
//	color #RRGGBB | size N | eraser on|off | sleep DURATION
//
// Blank lines and lines starting with # are skipped.
func runScript(ctx context.Context, r io.Reader, s *draw.Sync) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := runCommand(ctx, strings.Fields(text), s); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return sc.Err()
}

func runCommand(ctx context.Context, fields []string, s *draw.Sync) error {
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "down", "move":
		p, err := parsePoint(args)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		if cmd == "down" {
			s.PointerDown(p)
		} else {
			s.PointerMove(p)
		}
	case "up":
		s.PointerUp()
	case "clear":
		s.Clear()
	case "color":
		if len(args) != 1 {
			return fmt.Errorf("color: want 1 argument")
		}
		s.SetColor(args[0])
	case "size":
		if len(args) != 1 {
			return fmt.Errorf("size: want 1 argument")
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("size: invalid %q", args[0])
		}
		s.SetSize(v)
	case "eraser":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return fmt.Errorf("eraser: want on or off")
		}
		s.SetEraser(args[0] == "on")
	case "sleep":
		if len(args) != 1 {
			return fmt.Errorf("sleep: want 1 argument")
		}
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return fmt.Errorf("sleep: %w", err)
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func parsePoint(args []string) (draw.Point, error) {
	if len(args) != 2 {
		return draw.Point{}, fmt.Errorf("want X Y")
	}
	x, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return draw.Point{}, fmt.Errorf("x: %w", err)
	}
	y, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return draw.Point{}, fmt.Errorf("y: %w", err)
	}
	return draw.Point{X: x, Y: y}, nil
}
