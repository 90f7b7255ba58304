package ice

// Group selects one of the two content groups in an archive.
type Group int

const (
	Group1 Group = iota
	Group2
)

func (g Group) String() string {
	switch g {
	case Group1:
		return "group1"
	case Group2:
		return "group2"
	}
	return "unknown"
}

// Groups lists both groups in storage order.
var Groups = [2]Group{Group1, Group2}
