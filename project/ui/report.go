package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/coolcm/zaphod-bot/project/state"
	"github.com/flosch/pongo2/v5"
)

const reportSource = `{% autoescape off %}{{ name }} [{{ id }}] up {{ uptime }}
supervisor {{ supervisor }}, mode {{ mode }}, sync token {{ token }}
motion {% if motion.Running %}running{% elif motion.Enabled %}armed{% else %}disarmed{% endif %} move {{ motion.MovementID }} {{ progress }}% queue {{ motion.QueueDepth }}/{{ motion.QueueCap }} at ({{ x }}, {{ y }}, {{ z }})
lighting {% if lighting.Manual %}manual{% elif lighting.Running %}running{% else %}queued{% endif %} fade {{ lighting.FadeID }} queue {{ lighting.QueueDepth }}/{{ lighting.QueueCap }} rgb {{ rgb }}
events {{ pool_used }}/{{ pool_slots }} (max {{ pool_max }}, failed {{ pool_failed }}), dropped {{ dropped }}
{% for t in tasks %}{{ t.name }} {{ t.state }} q {{ t.used }}/{{ t.cap }} max {{ t.max }} wait {{ t.wait }} burst {{ t.burst }} undispatched {{ t.undispatched }} faults {{ t.faults }}
{% endfor %}{% endautoescape %}`

var reportTemplate = pongo2.Must(pongo2.FromString(reportSource))

func reportContext(s state.Shared) pongo2.Context {
	tasks := make([]map[string]interface{}, 0, len(s.Scheduler.Tasks))
	for _, t := range s.Scheduler.Tasks {
		tasks = append(tasks, map[string]interface{}{
			"name":         t.Name,
			"state":        t.State,
			"used":         t.QueueUsed,
			"cap":          t.QueueCap,
			"max":          t.QueueMax,
			"wait":         t.WaitingMax.String(),
			"burst":        t.BurstMax,
			"undispatched": t.Undispatched,
			"faults":       t.Faults,
		})
	}
	out := s.Lighting.Output
	return pongo2.Context{
		"name":        s.System.Name,
		"id":          s.System.ID,
		"uptime":      s.System.Uptime.Truncate(time.Millisecond).String(),
		"supervisor":  s.Supervisor.String(),
		"mode":        s.Mode.String(),
		"token":       s.SyncToken,
		"motion":      s.Motion,
		"progress":    fmt.Sprintf("%.0f", s.Motion.Progress*100),
		"x":           fmt.Sprintf("%.1f", s.Motion.Position.X),
		"y":           fmt.Sprintf("%.1f", s.Motion.Position.Y),
		"z":           fmt.Sprintf("%.1f", s.Motion.Position.Z),
		"lighting":    s.Lighting,
		"rgb":         fmt.Sprintf("%04x%04x%04x", out.R, out.G, out.B),
		"pool_used":   s.Scheduler.Pool.InUse,
		"pool_slots":  s.Scheduler.Pool.Slots,
		"pool_max":    s.Scheduler.Pool.HighWater,
		"pool_failed": s.Scheduler.Pool.Failures,
		"dropped":     s.Scheduler.Bus.Dropped + s.Scheduler.InboxDropped,
		"tasks":       tasks,
	}
}

// Report renders a plain-text status summary.
func (self *Host) Report(w io.Writer) error {
	return reportTemplate.ExecuteWriter(reportContext(self.store.Snapshot()), w)
}
