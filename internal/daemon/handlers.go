package daemon

import (
	"context"

	"github.com/nugrahalabib/moltbot/internal/control"
	"github.com/nugrahalabib/moltbot/internal/model"
	"github.com/nugrahalabib/moltbot/internal/uds"
)

type idParams struct {
	ID string `json:"id"`
}

type toggleParams struct {
	ID      string `json:"id"`
	Enabled *bool  `json:"enabled,omitempty"`
}

type upcomingParams struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

type snoozeParams struct {
	Minutes int `json:"minutes"`
}

type dismissParams struct {
	Answer string `json:"answer"`
}

type routineParams struct {
	Name string `json:"name"`
}

type testParams struct {
	Kind string     `json:"kind"`
	Mode model.Mode `json:"mode,omitempty"`
	Text string     `json:"text,omitempty"`
}

type lightsParams struct {
	Action     string `json:"action"`
	Brightness int    `json:"brightness,omitempty"`
	Color      string `json:"color,omitempty"`
}

type acParams struct {
	Action string `json:"action"`
	Temp   int    `json:"temp,omitempty"`
}

// decoded wraps a handler whose params decode into P.
func decoded[P any](fn func(ctx context.Context, p P) (any, error)) uds.HandlerFunc {
	return func(ctx context.Context, req *uds.Request) *uds.Response {
		var p P
		if err := req.Decode(&p); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
		}
		return control.Response(fn(ctx, p))
	}
}

func (d *Daemon) registerHandlers() {
	svc := d.svc
	s := d.server

	s.Handle(uds.CmdPing, func(ctx context.Context, req *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]string{"status": "ok"})
	})
	s.Handle(uds.CmdStatus, func(ctx context.Context, req *uds.Request) *uds.Response {
		return control.Response(svc.Status())
	})
	s.Handle(uds.CmdShutdown, func(ctx context.Context, req *uds.Request) *uds.Response {
		d.log.With("daemon").Infof("shutdown requested via UDS")
		return control.Response(map[string]string{"status": "shutdown_accepted"}, svc.RequestShutdown())
	})
	s.Handle(uds.CmdCheck, func(ctx context.Context, req *uds.Request) *uds.Response {
		return control.Response(svc.Check(ctx))
	})
	s.Handle(uds.CmdConfig, func(ctx context.Context, req *uds.Request) *uds.Response {
		return uds.SuccessResponse(svc.Config())
	})
	s.Handle(uds.CmdConfigSet, func(ctx context.Context, req *uds.Request) *uds.Response {
		return control.Response(svc.UpdateConfig(req.Params))
	})
	s.Handle(uds.CmdActive, func(ctx context.Context, req *uds.Request) *uds.Response {
		return uds.SuccessResponse(svc.Active())
	})

	s.Handle(uds.CmdAlarmList, func(ctx context.Context, req *uds.Request) *uds.Response {
		return control.Response(svc.ListAlarms())
	})
	s.Handle(uds.CmdAlarmAdd, decoded(func(ctx context.Context, a model.Alarm) (any, error) {
		return svc.AddAlarm(a)
	}))
	s.Handle(uds.CmdAlarmDelete, decoded(func(ctx context.Context, p idParams) (any, error) {
		n, err := svc.DeleteAlarm(p.ID)
		return map[string]int{"deleted": n}, err
	}))
	s.Handle(uds.CmdAlarmToggle, decoded(func(ctx context.Context, p toggleParams) (any, error) {
		return svc.ToggleAlarm(p.ID, p.Enabled)
	}))
	s.Handle(uds.CmdAlarmUpcoming, decoded(func(ctx context.Context, p upcomingParams) (any, error) {
		return svc.Upcoming(p.ID, p.Count)
	}))
	s.Handle(uds.CmdNextAlarm, func(ctx context.Context, req *uds.Request) *uds.Response {
		return control.Response(svc.NextAlarm())
	})

	s.Handle(uds.CmdReminderList, func(ctx context.Context, req *uds.Request) *uds.Response {
		return control.Response(svc.ListReminders())
	})
	s.Handle(uds.CmdReminderAdd, decoded(func(ctx context.Context, r model.Reminder) (any, error) {
		return svc.AddReminder(r)
	}))
	s.Handle(uds.CmdReminderDelete, decoded(func(ctx context.Context, p idParams) (any, error) {
		n, err := svc.DeleteReminder(p.ID)
		return map[string]int{"deleted": n}, err
	}))

	s.Handle(uds.CmdSnooze, decoded(func(ctx context.Context, p snoozeParams) (any, error) {
		return svc.Snooze(p.Minutes)
	}))
	s.Handle(uds.CmdDismiss, decoded(func(ctx context.Context, p dismissParams) (any, error) {
		err := svc.Dismiss(p.Answer)
		return map[string]bool{"dismissed": err == nil}, err
	}))
	s.Handle(uds.CmdRoutine, decoded(func(ctx context.Context, p routineParams) (any, error) {
		return map[string]string{"started": p.Name}, svc.RunRoutine(p.Name)
	}))
	s.Handle(uds.CmdTest, decoded(func(ctx context.Context, p testParams) (any, error) {
		return map[string]string{"started": p.Kind}, svc.RunTest(p.Kind, p.Mode, p.Text)
	}))
	s.Handle(uds.CmdLights, decoded(func(ctx context.Context, p lightsParams) (any, error) {
		return map[string]string{"action": p.Action}, svc.Lights(p.Action, p.Brightness, p.Color)
	}))
	s.Handle(uds.CmdAC, decoded(func(ctx context.Context, p acParams) (any, error) {
		return map[string]string{"action": p.Action}, svc.AC(p.Action, p.Temp)
	}))
}
