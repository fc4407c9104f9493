package entities

// QueueAction is a receptionist or doctor action on a queue entry
type QueueAction string

const (
	QueueActionCall       QueueAction = "call"
	QueueActionComplete   QueueAction = "complete"
	QueueActionCancel     QueueAction = "cancel"
	QueueActionPrioritize QueueAction = "prioritize"
	QueueActionReceive    QueueAction = "receive"
)

// transitionMap lists the statuses each action may start from
var transitionMap = map[QueueAction][]QueueStatus{
	QueueActionCall:       {QueueStatusWaiting},
	QueueActionComplete:   {QueueStatusInConsultation},
	QueueActionCancel:     {QueueStatusWaiting, QueueStatusInConsultation},
	QueueActionPrioritize: {QueueStatusWaiting},
}

// targetStatus is the status an action moves an entry into. Prioritize keeps the status.
var targetStatus = map[QueueAction]QueueStatus{
	QueueActionCall:       QueueStatusInConsultation,
	QueueActionComplete:   QueueStatusDone,
	QueueActionCancel:     QueueStatusCancelled,
	QueueActionPrioritize: QueueStatusWaiting,
}

// ValidTransition reports whether action is allowed from the given status
func ValidTransition(action QueueAction, from QueueStatus) bool {
	for _, status := range transitionMap[action] {
		if status == from {
			return true
		}
	}
	return false
}

// TargetStatus returns the status action leads to
func TargetStatus(action QueueAction) (QueueStatus, bool) {
	s, ok := targetStatus[action]
	return s, ok
}
