package types

// Category is the routing category assigned to a customer message.
type Category string

const (
	CategoryInformational    Category = "informational"
	CategoryServiceAction    Category = "service_action"
	CategorySafetyCompliance Category = "safety_compliance"
)

// Categories lists every valid category in a stable order.
func Categories() []Category {
	return []Category{CategoryInformational, CategoryServiceAction, CategorySafetyCompliance}
}

func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryInformational, CategoryServiceAction, CategorySafetyCompliance:
		return Category(s), true
	default:
		return "", false
	}
}

// Channel is the medium a message arrived on.
type Channel string

const (
	ChannelChat  Channel = "chat"
	ChannelVoice Channel = "voice"
	ChannelMail  Channel = "mail"
)

func ParseChannel(s string) (Channel, bool) {
	switch Channel(s) {
	case ChannelChat, ChannelVoice, ChannelMail:
		return Channel(s), true
	default:
		return "", false
	}
}

// Priority is the urgency of a workflow's next step.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Level returns a numeric level for comparison.
// Higher values mean more urgent.
func (p Priority) Level() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether p is as urgent as other.
func (p Priority) AtLeast(other Priority) bool {
	return p.Level() >= other.Level()
}

func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(s), true
	default:
		return "", false
	}
}
