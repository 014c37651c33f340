package main

import (
	"encoding/json"
	"fmt"

	core "github.com/ligun0805/bundle-submit/internal/bundlecore"
)

func printStats(st *core.StatsReport) {
	fmt.Printf("Stats for %s @ %d\n", st.BundleHash.Hex(), st.TargetBlock)
	if st.Bundle != nil {
		fmt.Println("  bundle:", rawOrJSON(st.Bundle.Raw, st.Bundle))
	} else {
		fmt.Println("  bundle: unavailable")
	}
	if st.User != nil {
		fmt.Println("  user  :", rawOrJSON(st.User.Raw, st.User))
	} else {
		fmt.Println("  user  : unavailable")
	}
}

func rawOrJSON(raw json.RawMessage, v any) string {
	if len(raw) > 0 {
		return string(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
