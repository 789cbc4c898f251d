package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/ssargent/kmall/pkg/codec"
)

// Summary is a flat description of a logical record for listings.
type Summary struct {
	Kind      string    `json:"kind"`
	Time      time.Time `json:"time"`
	Ping      uint16    `json:"ping,omitempty"`
	Fans      int       `json:"fans,omitempty"`
	Soundings int       `json:"soundings,omitempty"`
	WCFans    int       `json:"watercolumn_fans,omitempty"`
	XMTFans   int       `json:"extension_fans,omitempty"`
	Sidescan  int       `json:"sidescan_pixels,omitempty"`
	Text      string    `json:"text,omitempty"`
}

// Summarize describes lr. It copies everything it needs, so the summary
// stays valid after the reader moves on.
func Summarize(lr *LogicalRecord) Summary {
	s := Summary{Kind: lr.Kind.String(), Time: toTime(lr.Time())}
	if p := lr.Ping; p != nil {
		s.Kind = "PING"
		s.Ping = p.PingCounter
		s.Fans = len(p.MRZ)
		for _, m := range p.MRZ {
			s.Soundings += m.NumMainSoundings()
		}
		s.WCFans = len(p.MWC)
		s.XMTFans = len(p.XMT)
		if p.XMS != nil {
			s.Sidescan = len(p.XMS.Sidescan)
		}
		return s
	}
	switch v := lr.Record.(type) {
	case *codec.XMC:
		s.Text = v.Comment
	case *codec.IIP:
		s.Text = firstLine(v.Text)
	case *codec.IOP:
		s.Text = firstLine(v.Text)
	case *codec.XMB:
		s.Text = fmt.Sprintf("extensions=%t watercolumn=%t %s", v.Extensions, v.WaterColumn, v.SoftwareVersion)
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

func (s Summary) String() string {
	ts := s.Time.Format("2006-01-02T15:04:05.000000Z")
	if s.Kind == "PING" {
		line := fmt.Sprintf("%s PING %5d fans=%d soundings=%d", ts, s.Ping, s.Fans, s.Soundings)
		if s.WCFans > 0 {
			line += fmt.Sprintf(" wc=%d", s.WCFans)
		}
		if s.XMTFans > 0 || s.Sidescan > 0 {
			line += fmt.Sprintf(" xmt=%d sidescan=%d", s.XMTFans, s.Sidescan)
		}
		return line
	}
	if s.Text != "" {
		return fmt.Sprintf("%s %s %q", ts, s.Kind, s.Text)
	}
	return fmt.Sprintf("%s %s", ts, s.Kind)
}
