package messaging

import (
	"encoding/json"
	"fmt"
)

// BindingName is the native function page script reaches avg.send through.
const BindingName = "__avgSend"

// BootstrapScript defines avg.send(cmd, data) in every new document. Calls
// with anything other than exactly two strings return false without reaching
// the native side; errors thrown by the binding are swallowed so a broken
// host can never break the page.
func BootstrapScript() string {
	return fmt.Sprintf(`(function(){
var avg=window.avg||(window.avg={});
avg.send=function(cmd,data){
if(arguments.length!==2||typeof cmd!=="string"||typeof data!=="string"){return false;}
var fn=window[%s];
if(typeof fn!=="function"){return false;}
try{fn(JSON.stringify({cmd:cmd,data:data}));}catch(e){return false;}
return true;
};
})();`, jsonString(BindingName))
}

// ClickHookScript wires the onclick handler of every element that has an id
// to avg.send("onclick", id). It runs after each main-frame load.
func ClickHookScript() string {
	return fmt.Sprintf(`(function(){
function makeclick(id){return function(){avg.send(%s,id);};}
var els=document.getElementsByTagName("*");
for(var i=0,n=els.length;i<n;i++){if(els[i].id!==""){els[i].onclick=makeclick(els[i].id);}}
})();`, jsonString(ClickCommand))
}

// jsonString returns a JSON-encoded string literal for safe JS embedding.
func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
