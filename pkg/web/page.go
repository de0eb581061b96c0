package web

func loginPage(errMsg string) string {
	errBlock := ""
	if errMsg != "" {
		errBlock = `<div class="err">` + errMsg + `</div>`
	}
	return `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>rasachat - Login</title>
<style>
:root{--bg:#10121a;--panel:#181b26;--border:#2a2e3f;--accent:#4f8cff;--text:#e6e8f0;--muted:#747a8e;--error:#f87171}
*{box-sizing:border-box;margin:0;padding:0}
html,body{height:100%}
body{font-family:system-ui,-apple-system,sans-serif;background:var(--bg);color:var(--text);display:flex;align-items:center;justify-content:center}
form{width:100%;max-width:360px;padding:36px 28px;background:var(--panel);border:1px solid var(--border);border-radius:14px}
h1{font-size:19px;font-weight:600;text-align:center;margin-bottom:4px}
.sub{font-size:13px;color:var(--muted);text-align:center;margin-bottom:24px}
.err{padding:10px 14px;margin-bottom:18px;border:1px solid rgba(248,113,113,.3);border-radius:8px;font-size:13px;color:var(--error)}
label{display:block;font-size:13px;color:var(--muted);margin:12px 0 6px}
input{width:100%;padding:10px 13px;background:var(--bg);border:1px solid var(--border);border-radius:8px;color:var(--text);font-size:14px;outline:none}
input:focus{border-color:var(--accent)}
button{width:100%;padding:11px;margin-top:20px;background:var(--accent);color:#fff;border:none;border-radius:9px;font-size:14px;font-weight:600;cursor:pointer}
</style>
</head>
<body>
<form method="POST" action="/login">
  <h1>rasachat</h1>
  <p class="sub">Sign in to start chatting</p>
  ` + errBlock + `
  <label for="username">Username</label><input id="username" name="username" type="text" autocomplete="username" required autofocus>
  <label for="password">Password</label><input id="password" name="password" type="password" autocomplete="current-password" required>
  <button type="submit">Sign in</button>
</form>
</body>
</html>`
}

var chatPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>rasachat</title>
<style>
:root{--bg:#10121a;--panel:#181b26;--border:#2a2e3f;--accent:#4f8cff;--accent-2:#3a6fd8;
--user:#4f8cff;--bot:#1f2331;--text:#e6e8f0;--muted:#747a8e;--system:#9aa3bd}
*{box-sizing:border-box;margin:0;padding:0}
html,body{height:100%}
body{font-family:system-ui,-apple-system,sans-serif;background:var(--bg);color:var(--text);display:flex;flex-direction:column;overflow:hidden}
#header{padding:12px 20px;background:var(--panel);border-bottom:1px solid var(--border);display:flex;align-items:center;gap:10px;flex-wrap:wrap}
#header h1{font-size:15px;font-weight:600;margin-right:auto}
#server{width:260px;padding:7px 10px;background:var(--bg);border:1px solid var(--border);border-radius:7px;color:var(--text);font-size:13px;outline:none}
#server:focus{border-color:var(--accent)}
.btn{padding:7px 12px;background:none;border:1px solid var(--border);border-radius:7px;color:var(--muted);font-size:13px;cursor:pointer}
.btn:hover{border-color:var(--muted);color:var(--text)}
#messages{flex:1;overflow-y:auto;padding:20px;display:flex;flex-direction:column;gap:10px}
.bubble{max-width:70%;padding:10px 14px;border-radius:14px;line-height:1.55;font-size:14px;white-space:pre-wrap;word-wrap:break-word}
.user{align-self:flex-end;background:var(--user);color:#fff;border-bottom-right-radius:5px}
.bot{align-self:flex-start;background:var(--bot);border:1px solid var(--border);border-bottom-left-radius:5px}
.system{align-self:center;color:var(--system);font-size:12.5px;font-style:italic;padding:4px 10px}
#input-area{padding:14px 20px;background:var(--panel);border-top:1px solid var(--border);display:flex;gap:10px}
#input{flex:1;padding:11px 14px;background:var(--bg);border:1px solid var(--border);border-radius:10px;color:var(--text);font-size:14px;outline:none}
#input:focus{border-color:var(--accent)}
#send{width:44px;background:var(--accent);color:#fff;border:none;border-radius:10px;font-size:16px;cursor:pointer}
#send:hover{background:var(--accent-2)}
</style>
</head>
<body>
<div id="header">
  <h1>rasachat</h1>
  <input id="server" type="text" placeholder="http://localhost:5005" aria-label="Rasa server base URL">
  <button class="btn" id="apply">Apply</button>
  <button class="btn" id="status">Status</button>
  <button class="btn" id="clear">Clear</button>
  <button class="btn" id="restart">Restart</button>
</div>
<div id="messages"></div>
<div id="input-area">
  <input id="input" type="text" placeholder="Type your message..." aria-label="Chat message input" autofocus>
  <button id="send" aria-label="Send">&#10148;</button>
</div>
<script>
const msgs=document.getElementById("messages"),
      input=document.getElementById("input"),
      server=document.getElementById("server");
function render(entries){
  msgs.innerHTML="";
  for(const e of entries)addEntry(e);
}
function addEntry(e){
  const div=document.createElement("div");
  div.className="bubble "+e.role;
  div.textContent=e.text;
  msgs.appendChild(div);
  msgs.scrollTop=msgs.scrollHeight;
}
function connect(){
  const proto=location.protocol==="https:"?"wss":"ws";
  const ws=new WebSocket(proto+"://"+location.host+"/chat/ws");
  ws.onmessage=ev=>{
    const m=JSON.parse(ev.data);
    if(m.type==="reset")render(m.entries||[]);
    else if(m.type==="entry")addEntry(m.entry);
    else if(m.type==="input_cleared")input.value="";
  };
  ws.onclose=()=>setTimeout(connect,2000);
}
async function send(){
  await fetch("/chat/send",{method:"POST",headers:{"Content-Type":"application/json"},
    body:JSON.stringify({message:input.value})});
}
document.getElementById("send").onclick=send;
input.onkeydown=e=>{if(e.key==="Enter")send()};
document.getElementById("clear").onclick=()=>fetch("/chat/clear",{method:"POST"});
document.getElementById("restart").onclick=()=>fetch("/chat/restart",{method:"POST"});
document.getElementById("apply").onclick=async()=>{
  if(!server.value.trim())return;
  await fetch("/chat/server",{method:"POST",headers:{"Content-Type":"application/json"},
    body:JSON.stringify({base_url:server.value.trim()})});
};
document.getElementById("status").onclick=async()=>{
  const r=await fetch("/chat/status");
  const d=await r.json();
  addEntry({role:"system",text:r.ok?"Server is reachable: "+JSON.stringify(d):"Status check failed: "+(d.error||r.status)});
};
fetch("/chat/server").then(r=>r.json()).then(d=>{server.value=d.base_url||""});
connect();
</script>
</body>
</html>`
