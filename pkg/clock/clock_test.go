package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManual(t *testing.T) {
	t.Run("AdvanceMovesTime", testAdvanceMovesTime)
	t.Run("FiresInScheduleOrder", testFiresInOrder)
	t.Run("StopCancels", testStopCancels)
	t.Run("ChainedTasksFire", testChainedTasks)
	t.Run("NotDueStaysPending", testNotDue)
}

func testAdvanceMovesTime(t *testing.T) {
	clk := NewManual(epoch)
	if !clk.Now().Equal(epoch) {
		t.Fatalf("unexpected start time %v", clk.Now())
	}
	clk.Advance(90 * time.Second)
	if want := epoch.Add(90 * time.Second); !clk.Now().Equal(want) {
		t.Errorf("got %v, want %v", clk.Now(), want)
	}
}

func testFiresInOrder(t *testing.T) {
	clk := NewManual(epoch)
	var fired []int
	clk.AfterFunc(3*time.Second, func() { fired = append(fired, 3) })
	clk.AfterFunc(1*time.Second, func() { fired = append(fired, 1) })
	clk.AfterFunc(2*time.Second, func() { fired = append(fired, 2) })

	clk.Advance(5 * time.Second)

	if len(fired) != 3 || fired[0] != 1 || fired[1] != 2 || fired[2] != 3 {
		t.Errorf("tasks fired out of order: %v", fired)
	}
}

func testStopCancels(t *testing.T) {
	clk := NewManual(epoch)
	fired := false
	task := clk.AfterFunc(time.Second, func() { fired = true })

	if !task.Stop() {
		t.Error("first stop should report pending")
	}
	if task.Stop() {
		t.Error("second stop should report already stopped")
	}
	clk.Advance(time.Minute)
	if fired {
		t.Error("stopped task fired")
	}
}

func testChainedTasks(t *testing.T) {
	clk := NewManual(epoch)
	var fired []string
	clk.AfterFunc(time.Second, func() {
		fired = append(fired, "outer")
		clk.AfterFunc(time.Second, func() { fired = append(fired, "inner") })
	})

	clk.Advance(5 * time.Second)

	if len(fired) != 2 || fired[0] != "outer" || fired[1] != "inner" {
		t.Errorf("chained task missed: %v", fired)
	}
	if want := epoch.Add(5 * time.Second); !clk.Now().Equal(want) {
		t.Errorf("clock ended at %v, want %v", clk.Now(), want)
	}
}

func testNotDue(t *testing.T) {
	clk := NewManual(epoch)
	fired := false
	clk.AfterFunc(10*time.Second, func() { fired = true })

	clk.Advance(9 * time.Second)
	if fired {
		t.Fatal("task fired early")
	}
	clk.Advance(time.Second)
	if !fired {
		t.Error("task did not fire at its deadline")
	}
}
