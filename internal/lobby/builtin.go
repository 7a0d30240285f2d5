package lobby

// Built-in remote-call names.
const (
	CallSetPlayerName       = "set_player_name"
	CallSetPlayerPosition   = "set_player_position"
	CallLeavePlayerPosition = "leave_player_position"
)

// BuiltinCalls returns the remote calls every session supports.
func BuiltinCalls() []Call {
	return []Call{
		{
			Name:    CallSetPlayerName,
			Params:  []Param{{Name: "player_name", Kind: KindString}},
			Handler: handleSetPlayerName,
		},
		{
			Name:    CallSetPlayerPosition,
			Params:  []Param{{Name: "new_position", Kind: KindInteger}},
			Handler: handleSetPlayerPosition,
		},
		{
			Name:    CallLeavePlayerPosition,
			Handler: handleLeavePlayerPosition,
		},
	}
}

func handleSetPlayerName(st *State, caller ClientID, args Args) error {
	return st.Rename(caller, args.String("player_name"))
}

func handleSetPlayerPosition(st *State, caller ClientID, args Args) error {
	return st.Move(caller, args.Int("new_position"))
}

func handleLeavePlayerPosition(st *State, caller ClientID, _ Args) error {
	return st.Leave(caller)
}
