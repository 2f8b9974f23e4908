package mapping

import "github.com/joseph-ayodele/control-mapper/internal/entity"

func Summarize(o *Output) entity.JobSummary {
	s := entity.JobSummary{TotalControls: len(o.Requirements)}
	for _, r := range o.Requirements {
		if len(r.Checks) > 0 {
			s.ControlsWithChecks++
		}
		s.TotalCheckMappings += len(r.Checks)
	}
	s.UnmappedControls = s.TotalControls - s.ControlsWithChecks
	return s
}
