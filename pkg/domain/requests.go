package domain

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:  {RequestApproved, RequestRejected},
	RequestApproved: {RequestApprovedSeen},
	RequestRejected: {RequestRejectedSeen},
}

// Valid reports whether s is one of the canonical request statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected, RequestApprovedSeen, RequestRejectedSeen:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal step.
// Staying in the same status is always allowed.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InFlight reports whether the request still blocks a new submission: it is
// awaiting a decision, or approved and not yet acknowledged.
func (s RequestStatus) InFlight() bool {
	return s == RequestPending || s == RequestApproved
}

// Decided reports whether an outcome exists, seen or not.
func (s RequestStatus) Decided() bool {
	return s != RequestPending && s.Valid()
}

// Seen maps an outcome to its acknowledged form. The second return value is
// false when s has no acknowledged form (pending, or already seen).
func (s RequestStatus) Seen() (RequestStatus, bool) {
	switch s {
	case RequestApproved:
		return RequestApprovedSeen, true
	case RequestRejected:
		return RequestRejectedSeen, true
	}
	return s, false
}

// IsApproved reports approval, acknowledged or not.
func (s RequestStatus) IsApproved() bool {
	return s == RequestApproved || s == RequestApprovedSeen
}

// IsRejected reports rejection, acknowledged or not.
func (s RequestStatus) IsRejected() bool {
	return s == RequestRejected || s == RequestRejectedSeen
}

// Valid reports whether s is a canonical complaint status.
func (s ComplaintStatus) Valid() bool {
	switch s {
	case ComplaintPending, ComplaintInProgress, ComplaintResolved:
		return true
	}
	return false
}

// BelongsTo reports whether the request was filed by the student. Records
// that predate surrogate ids fall back to the regNo and name pair.
func (r AllocationRequest) BelongsTo(s Student) bool {
	if r.StudentID != "" && s.ID != "" {
		return r.StudentID == s.ID
	}
	return r.RegNo == s.RegNo && r.StudentName == s.Name
}
