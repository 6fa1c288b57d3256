package reminder

import "testing"

func TestCompile(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   Reminder
		expr string
		tz   string
		spec string
	}{
		{
			name: "every day",
			in:   Reminder{TimeOfDay: "09:30", Timezone: "Europe/Rome"},
			expr: "30 9 * * *",
			tz:   "Europe/Rome",
			spec: "CRON_TZ=Europe/Rome 30 9 * * *",
		},
		{
			name: "days kept as supplied",
			in:   Reminder{TimeOfDay: "18:05", DaysOfWeek: []int{3, 1}, Timezone: "UTC"},
			expr: "5 18 * * 3,1",
			tz:   "UTC",
			spec: "CRON_TZ=UTC 5 18 * * 3,1",
		},
		{
			name: "empty timezone",
			in:   Reminder{TimeOfDay: "00:00"},
			expr: "0 0 * * *",
			tz:   "UTC",
			spec: "CRON_TZ=UTC 0 0 * * *",
		},
		{
			name: "sunday as seven",
			in:   Reminder{TimeOfDay: "07:00", DaysOfWeek: []int{6, 7}, Timezone: "UTC"},
			expr: "0 7 * * 6,7",
			tz:   "UTC",
			spec: "CRON_TZ=UTC 0 7 * * 6,0",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rc, err := Compile(tt.in)
			if err != nil {
				t.Fatalf("Compile error: %v", err)
			}
			if rc.Expr != tt.expr {
				t.Fatalf("Expr = %q, want %q", rc.Expr, tt.expr)
			}
			if rc.Timezone != tt.tz {
				t.Fatalf("Timezone = %q, want %q", rc.Timezone, tt.tz)
			}
			if got := rc.Spec(); got != tt.spec {
				t.Fatalf("Spec = %q, want %q", got, tt.spec)
			}
		})
	}
}

func TestCompileCorruptTime(t *testing.T) {
	t.Parallel()
	if _, err := Compile(Reminder{TimeOfDay: "nine"}); err == nil {
		t.Fatal("expected error for corrupt time")
	}
}
