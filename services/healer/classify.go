package healer

import "strings"

// Action is a remediation action from a closed set.
type Action string

const (
	ActionReboot      Action = "reboot"
	ActionOptimizeCPU Action = "optimize_cpu"
	ActionClearCache  Action = "clear_cache"
	ActionCleanupDisk Action = "cleanup_disk"
	ActionDiagnostic  Action = "diagnostic"
)

// Actions lists every action value.
var Actions = []Action{ActionReboot, ActionOptimizeCPU, ActionClearCache, ActionCleanupDisk, ActionDiagnostic}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// Remote reports whether the action runs as a remote script.
func (a Action) Remote() bool {
	return a != ActionReboot
}

func (a Action) String() string { return string(a) }

// rule maps alarm-name and metric-name tokens onto an action.
type rule struct {
	action      Action
	alarmToken  string
	metricToken string
}

// rules is evaluated top to bottom; the first match wins. Alarm names often
// carry several tokens, so reordering changes remediation policy.
var rules = []rule{
	{action: ActionReboot, alarmToken: "status-check", metricToken: "statuscheckfailed"},
	{action: ActionOptimizeCPU, alarmToken: "cpu", metricToken: "cpuutilization"},
	{action: ActionClearCache, alarmToken: "memory", metricToken: "memoryutilization"},
	{action: ActionCleanupDisk, alarmToken: "disk", metricToken: "diskutilization"},
}

// Classify maps an alert onto a remediation action. It is pure and total;
// instanceID does not influence the result.
func Classify(msg AlertMessage, instanceID string) Action {
	alarm := strings.ToLower(msg.String("AlarmName"))
	metric := strings.ToLower(msg.String("Trigger", "MetricName"))

	for _, r := range rules {
		if strings.Contains(alarm, r.alarmToken) || strings.Contains(metric, r.metricToken) {
			return r.action
		}
	}
	return ActionDiagnostic
}
