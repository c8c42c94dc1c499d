package version

// Command is one version operation of a batch. The concrete variants are
// decoded once at the batch boundary.
type Command interface {
	command()
}

// SetStage moves one or more workspace records to another approval stage.
type SetStage struct {
	Table      string
	IDs        []uint64
	StageID    int
	Comment    string
	Recipients []string
}

func (SetStage) command() {}

// Swap publishes a workspace record: the draft SwapWith replaces the live
// record ID.
type Swap struct {
	Table string
	// ID is the live record
	ID uint64
	// SwapWith is the workspace version to exchange contents with
	SwapWith   uint64
	Comment    string
	Recipients []string
}

func (Swap) command() {}
