package fleet

import "jute-fleet-backend/internal/model"

// Viewer identifies who a snapshot is computed for.
type Viewer struct {
	ID    string
	Email string
	Role  model.UserRole
}

// ViewerFor builds the viewer context of a user.
func ViewerFor(u model.User) Viewer {
	return Viewer{ID: u.ID, Email: u.Email, Role: u.Role}
}

// Owns reports whether v owns m.
func (v Viewer) Owns(m model.Machine) bool {
	return v.Email != "" && m.Owner == v.Email
}

// CanSee reports whether m belongs in v's view. Owners see the machines they
// own; borrowers additionally see machines they are actively renting.
func (v Viewer) CanSee(m model.Machine) bool {
	switch v.Role {
	case model.RoleOwner:
		return v.Owns(m)
	case model.RoleBorrower:
		return v.Owns(m) || (v.ID != "" && m.RentedBy(v.ID))
	}
	return false
}

// Filter returns the part of snap visible to v. Run logs are restricted to
// visible machines, and share PINs are only shown to the machine's owner.
// snap is not modified.
func Filter(snap model.Snapshot, v Viewer) model.Snapshot {
	out := model.Snapshot{
		Machines: make([]model.Machine, 0, len(snap.Machines)),
		RunLogs:  make([]model.RunLog, 0, len(snap.RunLogs)),
	}
	visible := make(map[string]struct{}, len(snap.Machines))
	for _, m := range snap.Machines {
		if !v.CanSee(m) {
			continue
		}
		c := m.Clone()
		if !v.Owns(m) {
			c.Pin = nil
		}
		out.Machines = append(out.Machines, c)
		visible[m.ID] = struct{}{}
	}
	for _, l := range snap.RunLogs {
		if _, ok := visible[l.MachineID]; ok {
			out.RunLogs = append(out.RunLogs, l)
		}
	}
	return out
}
