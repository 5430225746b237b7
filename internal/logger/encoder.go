package logger

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// SubjectKey is the field naming the formula that an entry is about. It is rendered in front
// of the message instead of with the other fields.
const SubjectKey = "formula"

func newEncoder() *consoleEncoder {
	return &consoleEncoder{
		Encoder: zapcore.NewConsoleEncoder(fieldEncoderConfig),
	}
}

// consoleEncoder prints a single human-readable line per entry. Fields, apart from the subject, are
// printed on an indented second line for all levels but info.
type consoleEncoder struct {
	zapcore.Encoder
	subject string
}

func (c *consoleEncoder) Clone() zapcore.Encoder {
	return &consoleEncoder{
		Encoder: c.Encoder.Clone(),
		subject: c.subject,
	}
}

// AddString intercepts the subject when it is attached to a logger via With.
func (c *consoleEncoder) AddString(key string, value string) {
	if key == SubjectKey {
		c.subject = value
		return
	}
	c.Encoder.AddString(key, value)
}

func (c *consoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	subject := c.subject
	remaining := fields[:0:0]
	for _, f := range fields {
		if s, ok := subjectOf(f); ok {
			subject = s
			continue
		}
		remaining = append(remaining, f)
	}

	line := pool.Get()
	line.AppendString(ent.Time.Format(timeFormat))
	line.AppendByte(' ')
	line.AppendString(levelToColor[ent.Level].Sprintf("%-7s", ent.Level))
	line.AppendByte(' ')
	line.AppendString(fmt.Sprintf(namePattern, ent.LoggerName))
	line.AppendByte(' ')
	if subject != "" {
		line.AppendString(subjectColor.Sprintf("[%s]", subject))
		line.AppendByte(' ')
	}
	line.AppendString(ent.Message)

	if ent.Level == zapcore.InfoLevel {
		line.AppendByte('\n')
		return line, nil
	}

	b, err := c.Encoder.EncodeEntry(zapcore.Entry{}, remaining)
	if err != nil {
		return nil, err
	}
	defer b.Free()

	if buf := bytes.TrimSpace(b.Bytes()); len(buf) > 0 {
		line.AppendString(fieldPrefix)
		_, _ = line.Write(buf)
	}
	line.AppendByte('\n')
	return line, nil
}

func subjectOf(f zapcore.Field) (string, bool) {
	if f.Key != SubjectKey {
		return "", false
	}
	switch f.Type {
	case zapcore.StringType:
		return f.String, true
	case zapcore.StringerType:
		if s, ok := f.Interface.(fmt.Stringer); ok {
			return s.String(), true
		}
	}
	return "", false
}

const timeFormat = "15:04:05"

var (
	pool = buffer.NewPool()

	fieldEncoderConfig = zapcore.EncoderConfig{
		// No keys: time, level, name and message were already printed on the first line.
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
	}

	subjectColor = color.New(color.Bold)

	levelToColor = map[zapcore.Level]*color.Color{
		zapcore.DPanicLevel: color.New(color.FgHiRed),
		zapcore.PanicLevel:  color.New(color.FgHiRed),
		zapcore.FatalLevel:  color.New(color.FgRed),
		zapcore.ErrorLevel:  color.New(color.FgRed),
		zapcore.WarnLevel:   color.New(color.FgYellow),
		zapcore.InfoLevel:   color.New(color.FgBlue),
		zapcore.DebugLevel:  color.New(color.FgMagenta),
	}

	namePattern string
	fieldPrefix string
)

func init() {
	var l int
	for n := range domainFromString {
		if l < len(n) {
			l = len(n)
		}
	}
	namePattern = fmt.Sprintf("%%-%ds", l)
	// Time, padded level and padded domain name, each followed by a space.
	fieldPrefix = "\n" + strings.Repeat(" ", len(timeFormat)+1+7+1+l+1)
}

var _ zapcore.Encoder = (*consoleEncoder)(nil)
