package release_test

import (
	"fmt"
	"strings"

	"github.com/joaquin95/loldownloader/pkg/release"
)

func ExampleParse() {
	layout := release.Layout{
		BaseURL:      "l3cdn.riotgames.com",
		DownloadPath: "/releases/live",
		Version:      "0.0.0.130",
		DestRoot:     "lol",
	}

	manifest := "PKG1\r\n" +
		"/projects/lol_game_client/releases/0.0.0.130/files/DATA/a.luaobj.compressed,BIN_0x00000000,0,512,0\r\n" +
		"/projects/lol_game_client/releases/0.0.0.130/files/DATA/b.dds.compressed,BIN_0x00000001,0,256,0\r\n"

	m, err := release.Parse(strings.NewReader(manifest), layout)
	if err != nil {
		panic(err)
	}

	for _, a := range release.BuildArchiveIndex(m, layout) {
		fmt.Println(a.Name())
	}
	fmt.Println(m.Stats.FileCount, m.Stats.FileBytes)
	// Output:
	// BIN_0x00000000
	// BIN_0x00000001
	// 2 768
}
