package toolchain

import "strings"

// SourceFileName is the single compilation unit written into the sandbox.
const SourceFileName = "main.rs"

const appConstructor = "App::new()"

// exitFlagGlue is appended to programs for versions that predate
// playground_lib. The JavaScript side calls __exit to stop the app loop.
const exitFlagGlue = `
static __EXIT_FLAG: std::sync::atomic::AtomicBool = std::sync::atomic::AtomicBool::new(false);
#[wasm_bindgen::prelude::wasm_bindgen]
pub fn __exit() {
    __EXIT_FLAG.store(true, std::sync::atomic::Ordering::Relaxed);
}
fn __check_exit_flag(mut exit: bevy::ecs::event::EventWriter<bevy::app::AppExit>) {
    if __EXIT_FLAG.load(std::sync::atomic::Ordering::Relaxed) {
        exit.send(bevy::app::AppExit);
    }
}`

const playgroundLibImports = `
#[allow(unused_imports)]
use playground_lib::exports::*;
#[allow(unused_imports)]
use playground_lib::dbg;
`

// AdaptSource wires the exit hook into the user's App for the given version.
// Each version keeps its own rule; add a case for a new version instead of
// changing an existing one.
func AdaptSource(code string, version Version) string {
	switch version {
	case VersionV0_10:
		return adaptAddSystem(code)
	case VersionV0_11, VersionV0_12, VersionV0_13:
		return adaptAddSystems(code)
	case VersionV0_14, VersionV0_15, VersionMain:
		return adaptPlaygroundPlugin(code)
	default:
		return code
	}
}

func adaptAddSystem(code string) string {
	adapted := strings.ReplaceAll(code, appConstructor, "App::new().add_system(__check_exit_flag)")
	return adapted + exitFlagGlue
}

func adaptAddSystems(code string) string {
	adapted := strings.ReplaceAll(code, appConstructor, "App::new().add_systems(Update, __check_exit_flag)")
	return adapted + exitFlagGlue
}

func adaptPlaygroundPlugin(code string) string {
	adapted := strings.ReplaceAll(code, appConstructor, "App::new().add_plugins(playground_lib::Plugin)")
	return adapted + playgroundLibImports
}
