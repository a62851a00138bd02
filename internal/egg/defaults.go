package egg

// DefaultEggs returns the built-in seed set written to an empty eggs
// directory so a fresh node can run something immediately.
func DefaultEggs() []*Egg {
	return []*Egg{terrariaEgg(), minecraftEgg(), rustEgg()}
}

func terrariaEgg() *Egg {
	return &Egg{
		ID:          "terraria",
		Name:        "Terraria (Vanilla)",
		Description: "Official Terraria dedicated server.",
		Author:      "support@pyro.host",
		DockerImages: map[string]string{
			"Mono": "ghcr.io/pyrohost/yolks:mono_latest",
		},
		Startup: `./TerrariaServer.bin.x86_64 -config serverconfig.txt`,
		Config: EggConfig{
			Files: map[string]ConfigFile{
				"serverconfig.txt": {
					Parser: "properties",
					Find: map[string]any{
						"worldname":  "{{WORLD_NAME}}",
						"world":      "/home/container/saves/Worlds/{{WORLD_NAME}}.wld",
						"port":       "{{SERVER_PORT}}",
						"maxplayers": "{{MAX_PLAYERS}}",
						"autocreate": "{{WORLD_SIZE}}",
						"difficulty": "{{WORLD_DIFFICULTY}}",
						"motd":       "{{SERVER_MOTD}}",
						"seed":       "{{WORLD_SEED}}",
						"password":   "{{PASSWORD}}",
					},
				},
			},
			Startup: StartupConfig{Done: "Type 'help' for a list of commands"},
			Stop:    "exit",
		},
		Scripts: Scripts{
			Installation: InstallScript{
				Container:  "debian:bookworm-slim",
				Entrypoint: "bash",
				Script: `#!/bin/bash
apt-get update -qq
apt-get install -y -qq curl unzip > /dev/null
cd /mnt/server
DOWNLOAD_URL="https://terraria.org/api/download/pc-dedicated-server/terraria-server-${TERRARIA_VERSION}.zip"
curl -sSL -o terraria.zip "${DOWNLOAD_URL}"
unzip -o -q terraria.zip
cp -r ${TERRARIA_VERSION}/Linux/* .
rm -rf ${TERRARIA_VERSION} terraria.zip
chmod +x TerrariaServer.bin.x86_64
mkdir -p saves/Worlds
echo "install complete"
`,
			},
		},
		Variables: []Variable{
			{Name: "Terraria Version", EnvVariable: "TERRARIA_VERSION", DefaultValue: "1449", UserViewable: true, UserEditable: true, Rules: "required|string|max:6"},
			{Name: "World Name", EnvVariable: "WORLD_NAME", DefaultValue: "world", UserViewable: true, UserEditable: true, Rules: "required|string|max:20"},
			{Name: "Max Players", EnvVariable: "MAX_PLAYERS", DefaultValue: "8", UserViewable: true, UserEditable: true, Rules: "required|numeric|between:1,255"},
			{Name: "World Size", EnvVariable: "WORLD_SIZE", DefaultValue: "1", UserViewable: true, UserEditable: true, Rules: "required|in:1,2,3"},
			{Name: "World Difficulty", EnvVariable: "WORLD_DIFFICULTY", DefaultValue: "0", UserViewable: true, UserEditable: true, Rules: "required|in:0,1,2,3"},
			{Name: "Message of the Day", EnvVariable: "SERVER_MOTD", DefaultValue: "Powered by pyrod", UserViewable: true, UserEditable: true, Rules: "nullable|string"},
			{Name: "World Seed", EnvVariable: "WORLD_SEED", DefaultValue: "", UserViewable: true, UserEditable: true, Rules: "nullable|string"},
			{Name: "Server Password", EnvVariable: "PASSWORD", DefaultValue: "", UserViewable: true, UserEditable: true, Rules: "nullable|string"},
		},
	}
}

func minecraftEgg() *Egg {
	return &Egg{
		ID:          "minecraft",
		Name:        "Minecraft (Paper)",
		Description: "Paper Minecraft server with RCON enabled.",
		Author:      "support@pyro.host",
		DockerImages: map[string]string{
			"Java 17": "eclipse-temurin:17-jre",
			"Java 21": "eclipse-temurin:21-jre",
		},
		Startup: `java -Xms128M -Xmx{{SERVER_MEMORY}}M -Dterminal.jline=false -Dterminal.ansi=true -jar {{SERVER_JARFILE}} nogui`,
		Config: EggConfig{
			Files: map[string]ConfigFile{
				"server.properties": {
					Parser: "properties",
					Find: map[string]any{
						"server-port":   "{{SERVER_PORT}}",
						"query.port":    "{{SERVER_PORT}}",
						"enable-rcon":   "true",
						"rcon.port":     "{{RCON_PORT}}",
						"rcon.password": "{{RCON_PASSWORD}}",
						"motd":          "{{SERVER_MOTD}}",
						"max-players":   "{{MAX_PLAYERS}}",
						"level-name":    "{{LEVEL_NAME}}",
						"online-mode":   "{{ONLINE_MODE}}",
					},
				},
				"eula.txt": {
					Parser: "file",
					Find: map[string]any{
						"content": "eula=true\n",
					},
				},
			},
			Startup: StartupConfig{Done: `)! For help, type "help"`},
			Stop:    "stop",
		},
		Scripts: Scripts{
			Installation: InstallScript{
				Container:  "eclipse-temurin:17-jdk",
				Entrypoint: "bash",
				Script: `#!/bin/bash
apt-get update -qq
apt-get install -y -qq curl jq > /dev/null
cd /mnt/server
if [ "${MC_VERSION}" == "latest" ]; then
  MC_VERSION=$(curl -s https://api.papermc.io/v2/projects/paper | jq -r '.versions[-1]')
fi
BUILD=$(curl -s "https://api.papermc.io/v2/projects/paper/versions/${MC_VERSION}/builds" | jq -r '.builds[-1].build')
JAR="paper-${MC_VERSION}-${BUILD}.jar"
curl -sSL -o "${SERVER_JARFILE}" "https://api.papermc.io/v2/projects/paper/versions/${MC_VERSION}/builds/${BUILD}/downloads/${JAR}"
echo "eula=true" > eula.txt
echo "install complete"
`,
			},
		},
		Variables: []Variable{
			{Name: "Minecraft Version", EnvVariable: "MC_VERSION", DefaultValue: "latest", UserViewable: true, UserEditable: true, Rules: "required|string|max:20"},
			{Name: "Server Jar File", EnvVariable: "SERVER_JARFILE", DefaultValue: "server.jar", UserViewable: true, UserEditable: true, Rules: "required|string|max:64"},
			{Name: "Message of the Day", EnvVariable: "SERVER_MOTD", DefaultValue: "A pyrod Minecraft server", UserViewable: true, UserEditable: true, Rules: "nullable|string"},
			{Name: "Max Players", EnvVariable: "MAX_PLAYERS", DefaultValue: "20", UserViewable: true, UserEditable: true, Rules: "required|numeric|between:1,500"},
			{Name: "Level Name", EnvVariable: "LEVEL_NAME", DefaultValue: "world", UserViewable: true, UserEditable: true, Rules: "required|string|max:32"},
			{Name: "Online Mode", EnvVariable: "ONLINE_MODE", DefaultValue: "true", UserViewable: true, UserEditable: true, Rules: "required|in:true,false"},
			{Name: "RCON Port", EnvVariable: "RCON_PORT", DefaultValue: "", UserViewable: false, UserEditable: false, Rules: "nullable|numeric"},
			{Name: "RCON Password", EnvVariable: "RCON_PASSWORD", DefaultValue: "pyrod", UserViewable: false, UserEditable: true, Rules: "nullable|string|max:64"},
		},
	}
}

func rustEgg() *Egg {
	return &Egg{
		ID:          "rust",
		Name:        "Rust",
		Description: "Rust dedicated server via SteamCMD.",
		Author:      "support@pyro.host",
		DockerImages: map[string]string{
			"Mono": "ghcr.io/pyrohost/yolks:mono_latest",
		},
		Startup: `./RustDedicated -batchmode +server.port {{SERVER_PORT}} +server.hostname "{{HOSTNAME}}" +server.level "{{LEVEL}}" +server.maxplayers {{MAX_PLAYERS}} +server.worldsize {{WORLD_SIZE}} +server.seed {{WORLD_SEED}} +server.identity "rust"`,
		Config: EggConfig{
			Startup: StartupConfig{Done: "Server startup complete"},
			Stop:    "quit",
		},
		Scripts: Scripts{
			Installation: InstallScript{
				Container:  "steamcmd/steamcmd:ubuntu",
				Entrypoint: "bash",
				Script: `#!/bin/bash
cd /mnt/server
steamcmd +force_install_dir /mnt/server +login anonymous +app_update 258550 validate +quit
echo "install complete"
`,
			},
		},
		Variables: []Variable{
			{Name: "Server Hostname", EnvVariable: "HOSTNAME", DefaultValue: "A pyrod Rust server", UserViewable: true, UserEditable: true, Rules: "required|string|max:60"},
			{Name: "Level", EnvVariable: "LEVEL", DefaultValue: "Procedural Map", UserViewable: true, UserEditable: true, Rules: "required|string|max:40"},
			{Name: "Max Players", EnvVariable: "MAX_PLAYERS", DefaultValue: "50", UserViewable: true, UserEditable: true, Rules: "required|numeric|between:1,500"},
			{Name: "World Size", EnvVariable: "WORLD_SIZE", DefaultValue: "3000", UserViewable: true, UserEditable: true, Rules: "required|numeric|between:1000,6000"},
			{Name: "World Seed", EnvVariable: "WORLD_SEED", DefaultValue: "", UserViewable: true, UserEditable: true, Rules: "nullable|numeric"},
		},
	}
}
