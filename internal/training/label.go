package training

import "github.com/devghori1264/aerophoenix/edgefleet/internal/models"

// Label assigns remain_time to the rows of one machine, in recording order:
// each row before a BROKEN row gets the working time still left until that
// failure. Rows after the last failure have no label and are dropped.
func Label(rows []Row) []Row {
	var out []Row
	start := 0
	for end, r := range rows {
		if r.Status != models.StatusBroken {
			continue
		}
		for _, prev := range rows[start : end+1] {
			v := max(r.WorkingTime-prev.WorkingTime, 0)
			prev.RemainTime = &v
			out = append(out, prev)
		}
		start = end + 1
	}
	return out
}

// SplitByMachine groups rows per machine id, keeping first-seen order of
// machines and recording order within each.
func SplitByMachine(rows []Row) (ids []string, byMachine map[string][]Row) {
	byMachine = make(map[string][]Row)
	for _, r := range rows {
		if _, ok := byMachine[r.MachineID]; !ok {
			ids = append(ids, r.MachineID)
		}
		byMachine[r.MachineID] = append(byMachine[r.MachineID], r)
	}
	return ids, byMachine
}

// Build labels a mixed recording machine by machine. The result is grouped
// per machine in first-seen order.
func Build(rows []Row) []Row {
	ids, byMachine := SplitByMachine(rows)
	var out []Row
	for _, id := range ids {
		out = append(out, Label(byMachine[id])...)
	}
	return out
}
